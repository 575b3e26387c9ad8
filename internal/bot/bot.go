// Package bot receives voice notes over Telegram and replies with the outcome.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// SourceTelegram marks voice notes received by the bot.
const SourceTelegram = "telegram"

const (
	pollTimeout    = 60 // seconds, long polling
	commandTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Options configures a Bot. Every field is optional.
type Options struct {
	// Projects backs /obras and /status.
	Projects func(ctx context.Context) ([]ledger.ProjectInfo, error)
	// Counts reports queued jobs per status for /status.
	Counts func() map[jobs.JobStatus]int
	// Storage names the spreadsheet backend in /status.
	Storage string
	// MaxRetries is copied to every published job.
	MaxRetries int
	// HTTPClient downloads voice files. Defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

// Bot turns Telegram updates into voice note jobs and commands into replies.
type Bot struct {
	api       API
	publisher jobs.Publisher
	opts      Options
	log       zerolog.Logger
}

var _ pipeline.Replier = (*Bot)(nil)

// New creates a bot publishing voice notes to publisher.
func New(api API, publisher jobs.Publisher, opts Options, log zerolog.Logger) *Bot {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Bot{
		api:       api,
		publisher: publisher,
		opts:      opts,
		log:       log,
	}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Info().Msg("Telegram bot polling for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Panics are recovered and logged.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	log := b.log.With().
		Int("update_id", update.UpdateID).
		Int64("chat_id", msg.Chat.ID).
		Int("message_id", msg.MessageID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("error", r).Msg("Panic recovered while handling update")
			b.send(ctx, msg.Chat.ID, "❌ Erro inesperado.", false)
		}
	}()

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, msg, msg.Voice.FileID, msg.Voice.MimeType)
	case msg.Audio != nil:
		b.handleVoice(ctx, msg, msg.Audio.FileID, msg.Audio.MimeType)
	case strings.TrimSpace(msg.Text) != "":
		b.send(ctx, msg.Chat.ID, textHintMessage, false)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	log := logger.FromContext(ctx)
	log.Debug().Str("command", msg.Command()).Msg("Command received")

	switch msg.Command() {
	case "start":
		b.send(ctx, chatID, startMessage, true)
	case "help", "ajuda":
		b.send(ctx, chatID, helpMessage, true)
	case "projects", "obras":
		projects, err := b.listProjects(ctx)
		if err != nil {
			b.send(ctx, chatID, "❌ Erro ao listar obras: "+esc(err.Error()), true)
			return
		}
		b.send(ctx, chatID, formatProjects(projects), true)
	case "status":
		projects, err := b.listProjects(ctx)
		if err != nil {
			b.send(ctx, chatID, "❌ Erro: "+esc(err.Error()), true)
			return
		}
		var counts map[jobs.JobStatus]int
		if b.opts.Counts != nil {
			counts = b.opts.Counts()
		}
		b.send(ctx, chatID, formatStatus(len(projects), b.opts.Storage, counts), true)
	default:
		b.send(ctx, chatID, "Comando desconhecido. Use /ajuda para ver os comandos.", false)
	}
}

func (b *Bot) listProjects(ctx context.Context) ([]ledger.ProjectInfo, error) {
	if b.opts.Projects == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return b.opts.Projects(ctx)
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message, fileID, mimeType string) {
	log := logger.FromContext(ctx)
	chatID := msg.Chat.ID

	b.send(ctx, chatID, processingMessage, false)

	job := &jobs.VoiceNoteJob{
		NoteID:     NoteID(chatID, msg.MessageID),
		Source:     SourceTelegram,
		Sender:     senderName(msg.From),
		ChatID:     chatID,
		MIMEType:   mimeType,
		Audio:      &FileAudio{api: b.api, client: b.opts.HTTPClient, fileID: fileID},
		MaxRetries: b.opts.MaxRetries,
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.publisher.PublishVoiceNote(pubCtx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue voice note")
		b.send(ctx, chatID, "❌ Erro inesperado: não consegui colocar o áudio na fila. Tente novamente.", false)
		return
	}
	log.Info().Str("job_id", job.JobID).Str("note_id", job.NoteID).Msg("Voice note enqueued")
}

// Reply implements pipeline.Replier.
func (b *Bot) Reply(ctx context.Context, note pipeline.VoiceNote, outcome *pipeline.Outcome) error {
	if note.ChatID == 0 {
		return fmt.Errorf("Reply: note %s has no chat", note.ID)
	}
	return b.sendErr(note.ChatID, FormatOutcome(outcome), true)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markdown bool) {
	if err := b.sendErr(chatID, text, markdown); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendErr(chatID int64, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// NoteID identifies a Telegram message across chats.
func NoteID(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + "-" + strconv.Itoa(messageID)
}

func senderName(u *tgbotapi.User) string {
	switch {
	case u == nil:
		return ""
	case u.UserName != "":
		return u.UserName
	case u.FirstName != "":
		return u.FirstName
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

// FileAudio downloads a Telegram file when the pipeline opens it.
type FileAudio struct {
	api    API
	client *http.Client
	fileID string
}

// Open resolves the file URL and starts the download.
func (f *FileAudio) Open(ctx context.Context) (io.ReadCloser, error) {
	url, err := f.api.GetFileDirectURL(f.fileID)
	if err != nil {
		return nil, fmt.Errorf("FileAudio.Open: resolve file %s: %w", f.fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("FileAudio.Open: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FileAudio.Open: download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("FileAudio.Open: download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// botLogger routes the library's log lines through zerolog.
type botLogger struct {
	log zerolog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

// UseLogger sends the Telegram library's own logging to log.
func UseLogger(log zerolog.Logger) {
	_ = tgbotapi.SetLogger(botLogger{log: log.With().Str("component", "telegram").Logger()})
}
