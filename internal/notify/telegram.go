package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
)

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramConfig configures the Telegram bot.
type TelegramConfig struct {
	Token  string
	ChatID int64 // the only chat that receives events and may issue commands
	Logger zerolog.Logger
	Now    func() time.Time
}

// Telegram sends events to one chat and serves /status, /positions and
// /sell commands from it.
type Telegram struct {
	api  botAPI
	cfg  TelegramConfig
	ctrl Controller
}

// NewTelegram connects to the Bot API.
func NewTelegram(cfg TelegramConfig, ctrl Controller) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newTelegram(api, cfg, ctrl), nil
}

func newTelegram(api botAPI, cfg TelegramConfig, ctrl Controller) *Telegram {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Telegram{api: api, cfg: cfg, ctrl: ctrl}
}

// SetController attaches the command target after construction.
func (t *Telegram) SetController(ctrl Controller) {
	t.ctrl = ctrl
}

func (t *Telegram) PositionOpened(_ context.Context, p *domain.Position) {
	t.send(formatOpened(p))
}

func (t *Telegram) PositionExited(_ context.Context, ev domain.ExitEvent) {
	t.send(formatExited(ev))
}

func (t *Telegram) Alert(_ context.Context, msg string) {
	t.send("ALERT " + msg)
}

func (t *Telegram) send(text string) {
	if _, err := t.api.Send(tgbotapi.NewMessage(t.cfg.ChatID, text)); err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("telegram send failed")
	}
}

// Run serves commands until ctx is done.
func (t *Telegram) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() || msg.Chat == nil || msg.Chat.ID != t.cfg.ChatID {
				continue
			}
			t.send(t.handle(msg.Command(), msg.CommandArguments()))
		}
	}
}

// handle executes one command and returns the reply.
func (t *Telegram) handle(command, args string) string {
	if t.ctrl == nil {
		return "trader not ready"
	}
	switch strings.ToLower(command) {
	case "start", "help":
		return "commands:\n/status - trader status\n/positions - open positions\n/sell <mint> - close a position"
	case "status":
		return formatStatus(t.ctrl.Status(), t.cfg.Now())
	case "positions":
		return formatPositions(t.ctrl.Positions())
	case "sell":
		mint := strings.TrimSpace(args)
		if mint == "" {
			return "usage: /sell <mint>"
		}
		if err := t.ctrl.RequestExit(mint, domain.ExitReasonManual); err != nil {
			return fmt.Sprintf("sell %s: %v", mint, err)
		}
		t.cfg.Logger.Info().Str("mint", mint).Msg("manual exit requested")
		return fmt.Sprintf("exit requested for %s", mint)
	default:
		return fmt.Sprintf("unknown command /%s", command)
	}
}
