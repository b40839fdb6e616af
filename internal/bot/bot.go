package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/cache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/config"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/localcache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/scheduler"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/service"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/tiered"
	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"
)

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	repo      *storage.Repository
	tier      *cache.RedisTier
	cache     *localcache.LocalCache
	scheduler *scheduler.Scheduler
	router    *Router
	commands  []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(ctx context.Context, cfg *config.Config) (*Bot, error) {
	at, err := scheduler.ParseClock(cfg.ResetTime)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Optional cache tier
	var tier cache.Tier
	var redisTier *cache.RedisTier
	if cfg.RedisURL != "" {
		redisTier, err = cache.NewRedisTier(ctx, cfg.RedisURL, cfg.CacheKeyPrefix)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to connect to cache tier: %w", err)
		}
		tier = redisTier
		slog.Info("Cache tier enabled", "prefix", cfg.CacheKeyPrefix)
	} else {
		slog.Info("Cache tier disabled")
	}

	svc := service.New(service.Stores{
		Games:   repo.Games(),
		Lineups: repo.Lineups(),
		Users:   repo.Users(),
	}, tier, tiered.Options{
		StoreTimeout: cfg.StoreTimeout,
		CacheTimeout: cfg.CacheTimeout,
		ReadRetries:  cfg.ReadRetries,
	})
	lc := localcache.New(svc)

	b := newBot(lc)
	b.config = cfg
	b.session = session
	b.repo = repo
	b.tier = redisTier
	b.scheduler = scheduler.New(lc, at, loc)
	b.scheduler.OnReset = b.announceReset

	b.registerHandlers()

	return b, nil
}

// newBot wires the command router around a lineup cache
func newBot(lc *localcache.LocalCache) *Bot {
	b := &Bot{
		cache:  lc,
		router: NewRouter(),
	}
	b.registerRoutes()
	return b
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Commands are answered with a "starting up" reply until this finishes
	go b.initCache(ctx)

	b.scheduler.Start(ctx)

	return nil
}

func (b *Bot) initCache(ctx context.Context) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := b.cache.Init(ctx)
		if errors.Is(err, localcache.ErrAlreadyInitialized) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Error("Failed to load lineups, retrying", "retryIn", next, "error", err)
		}),
	)
	if err != nil {
		slog.Error("Lineup cache not loaded", "error", err)
		return
	}
	games, _ := b.cache.AllGames()
	slog.Info("Lineup cache ready, accepting commands", "games", len(games))
}

// announceReset posts the daily reset notice to the configured channel
func (b *Bot) announceReset(lineups []*model.Lineup) {
	if b.config.ResetChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSend(b.config.ResetChannelID, resetAnnouncement(lineups)); err != nil {
		slog.Error("Failed to announce lineup reset", "channel", b.config.ResetChannelID, "error", err)
	}
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}

	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Close())
	}
	if b.tier != nil {
		errs = append(errs, b.tier.Close())
	}
	if b.repo != nil {
		errs = append(errs, b.repo.Close())
	}
	return errors.Join(errs...)
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands", "guild", b.config.GuildID)

	defs := b.router.Definitions()
	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.config.GuildID, defs)
	if err != nil {
		return err
	}

	b.commands = registered
	slog.Info("Slash commands registered", "count", len(registered))
	return nil
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	req := newRequest(i)
	slog.Debug("Received command", "command", req.Command, "user", req.UserID, "guild", req.GuildID)

	if b.cache.State() != localcache.Ready {
		respondEphemeral(s, i, msgStartingUp)
		return
	}

	// Respond immediately to avoid timeout
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Error("Failed to acknowledge command", "command", req.Command, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	editResponse(s, i, b.dispatch(ctx, req))
}

// dispatch runs a command and renders its reply, including errors
func (b *Bot) dispatch(ctx context.Context, req *Request) string {
	cmd, err := b.router.Get(req.Command)
	if err != nil {
		slog.Warn("Unknown command", "command", req.Command)
		return "Unknown command."
	}

	if req.UserID != "" {
		if _, err := b.cache.ConfirmUserInit(ctx, req.UserID); err != nil {
			slog.Error("Failed to register user", "user", req.UserID, "error", err)
			return errorMessage(err)
		}
	}

	reply, err := cmd.Handler(ctx, req)
	if err != nil {
		slog.Warn("Command failed", "command", req.Command, "user", req.UserID, "error", err)
		return errorMessage(err)
	}
	return reply
}

// Helper functions

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to respond", "error", err)
	}
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{
				discordgo.AllowedMentionTypeUsers,
				discordgo.AllowedMentionTypeRoles,
			},
		},
	})
	if err != nil {
		slog.Error("Failed to edit response", "error", err)
	}
}
