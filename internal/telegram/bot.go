package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evolark/photogenbot/internal/catalog"
	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/models"
	"github.com/evolark/photogenbot/internal/payment"
	"github.com/evolark/photogenbot/internal/session"
)

// ReferenceStorage turns a collected image into a public URL. Optional: when
// nil the image goes to the API inline.
type ReferenceStorage interface {
	Upload(ctx context.Context, userID int64, data []byte, contentType string) (string, error)
}

type Bot struct {
	cfg          config.Config
	api          *tgbotapi.BotAPI
	log          *slog.Logger
	catalog      *catalog.Catalog
	ledger       *ledger.Ledger
	payments     *payment.Service
	storage      ReferenceStorage
	orchestrator *session.Orchestrator
	httpClient   *http.Client
}

// NewBot wires the transport. The orchestrator is attached afterwards with
// SetOrchestrator because it needs the bot as its Messenger.
func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, cat *catalog.Catalog, ldgr *ledger.Ledger, payments *payment.Service, storage ReferenceStorage) *Bot {
	return &Bot{
		cfg:      cfg,
		api:      api,
		log:      log,
		catalog:  cat,
		ledger:   ldgr,
		payments: payments,
		storage:  storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (b *Bot) SetOrchestrator(o *session.Orchestrator) {
	b.orchestrator = o
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		if err := b.orchestrator.Reset(userID); err != nil {
			b.sendText(msg.Chat.ID, "⏳ Дождитесь завершения текущей генерации.")
			return
		}
		out := tgbotapi.NewMessage(msg.Chat.ID, mainMenuText)
		out.ReplyMarkup = mainMenuKeyboard()
		b.send(out)
	case "balance":
		text, keyboard := b.balanceView(userID)
		out := tgbotapi.NewMessage(msg.Chat.ID, text)
		out.ReplyMarkup = keyboard
		b.send(out)
	case "topup":
		text, keyboard := b.topupMenu()
		out := tgbotapi.NewMessage(msg.Chat.ID, text)
		out.ReplyMarkup = keyboard
		b.send(out)
	case "stats":
		text, keyboard := b.statsView(userID)
		out := tgbotapi.NewMessage(msg.Chat.ID, text)
		out.ReplyMarkup = keyboard
		b.send(out)
	case "help":
		b.sendText(msg.Chat.ID, b.helpText())
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Используйте /start.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	err := b.orchestrator.SubmitPrompt(ctx, userID, text)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientFunds):
		account := b.ledger.GetOrInit(userID)
		b.sendText(msg.Chat.ID, fmt.Sprintf("❌ Недостаточно средств!\n\nВаш баланс: %d руб\n\nИспользуйте /topup для пополнения", account.Balance))
	case errors.Is(err, session.ErrRunInFlight):
		b.sendText(msg.Chat.ID, "⏳ Предыдущий запрос еще обрабатывается. Дождитесь результата.")
	case errors.Is(err, session.ErrNotAwaitingImage):
		b.sendText(msg.Chat.ID, "📸 Для этой модели сначала требуется изображение.")
	default:
		b.sendText(msg.Chat.ID, "🤔 Сначала выберите действие через меню /start")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	st := b.orchestrator.State(userID)

	if st.Step == session.StepIdle {
		out := tgbotapi.NewMessage(msg.Chat.ID, "📸 Фото получено!\n\nЧто вы хотите сделать с этим изображением?")
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✨ Редактировать это фото", "model_image-to-image")),
		)
		b.send(out)
		return
	}

	photo := msg.Photo[len(msg.Photo)-1]
	data, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		b.log.Error("download photo", "user_id", userID, "err", err)
		b.sendText(msg.Chat.ID, "❌ Ошибка загрузки изображения")
		return
	}

	publicURL := ""
	if b.storage != nil {
		url, err := b.storage.Upload(ctx, userID, data, "image/jpeg")
		if err != nil {
			b.log.Error("upload reference", "user_id", userID, "err", err)
		} else {
			publicURL = url
		}
	}

	if err := b.orchestrator.AttachImage(userID, data, publicURL); err != nil {
		switch {
		case errors.Is(err, session.ErrRunInFlight):
			b.sendText(msg.Chat.ID, "⏳ Предыдущий запрос еще обрабатывается.")
		default:
			b.sendText(msg.Chat.ID, "🤔 Для выбранной модели изображение не требуется. Отправьте текстовый запрос.")
		}
		return
	}

	priceText := ""
	if spec, err := b.catalog.Get(st.ModelID); err == nil {
		if st.Free {
			priceText = " (бесплатная попытка)"
		} else {
			priceText = fmt.Sprintf(" (%d руб)", spec.Price)
		}
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Фото получено!%s\n\nТеперь опишите что сделать с изображением.", priceText))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID
	data := cb.Data

	b.answerCallback(cb.ID)

	switch {
	case data == "menu_generate":
		text, keyboard := b.generationMenu()
		b.editMessage(chatID, cb.Message.MessageID, text, &keyboard)
	case data == "menu_video":
		text, keyboard := b.videoMenu()
		b.editMessage(chatID, cb.Message.MessageID, text, &keyboard)
	case data == "menu_balance":
		text, keyboard := b.balanceView(userID)
		b.editMessage(chatID, cb.Message.MessageID, text, &keyboard)
	case data == "menu_topup":
		text, keyboard := b.topupMenu()
		b.editMessage(chatID, cb.Message.MessageID, text, &keyboard)
	case data == "menu_stats":
		text, keyboard := b.statsView(userID)
		b.editMessage(chatID, cb.Message.MessageID, text, &keyboard)
	case data == "menu_help":
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")),
		)
		b.editMessage(chatID, cb.Message.MessageID, b.helpText(), &keyboard)
	case data == "menu_back":
		keyboard := mainMenuKeyboard()
		b.editMessage(chatID, cb.Message.MessageID, mainMenuText, &keyboard)
	case strings.HasPrefix(data, "model_"):
		b.handleModelSelection(chatID, cb.Message.MessageID, userID, strings.TrimPrefix(data, "model_"))
	case strings.HasPrefix(data, "topup_"):
		b.handleTopup(ctx, chatID, cb.Message.MessageID, userID, strings.TrimPrefix(data, "topup_"))
	case strings.HasPrefix(data, "check_payment_"):
		b.handlePaymentCheck(chatID, cb.Message.MessageID, strings.TrimPrefix(data, "check_payment_"))
	default:
		b.log.Warn("unknown callback", "data", data)
	}
}

func (b *Bot) handleModelSelection(chatID int64, messageID int, userID int64, modelID string) {
	out, err := b.orchestrator.SelectModel(userID, modelID)
	if err != nil {
		if errors.Is(err, session.ErrRunInFlight) {
			b.sendText(chatID, "⏳ Дождитесь завершения текущей генерации.")
			return
		}
		b.editMessage(chatID, messageID, "❌ Модель не найдена", nil)
		return
	}
	b.editMessage(chatID, messageID, selectionText(out.Spec, out.Free, out.Balance), nil)
}

func (b *Bot) handleTopup(ctx context.Context, chatID int64, messageID int, userID int64, rawAmount string) {
	amount, err := strconv.Atoi(rawAmount)
	if err != nil || amount <= 0 {
		b.editMessage(chatID, messageID, "❌ Некорректная сумма", nil)
		return
	}

	record, err := b.payments.Create(ctx, userID, amount)
	if err != nil {
		b.log.Error("create payment", "user_id", userID, "err", err)
		b.editMessage(chatID, messageID, "❌ Ошибка создания платежа", nil)
		return
	}

	text := fmt.Sprintf("💳 Оплата %d руб\n\nДля оплаты перейдите по ссылке:\n%s\n\nПосле оплаты нажмите «✅ Я оплатил».", amount, record.ConfirmationURL)
	if record.Demo {
		text += "\n\n⚠️ Тестовый платеж! Деньги не списываются."
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Я оплатил", "check_payment_"+record.ID)),
	)
	b.editMessage(chatID, messageID, text, &keyboard)
}

func (b *Bot) handlePaymentCheck(chatID int64, messageID int, paymentID string) {
	record, err := b.payments.Confirm(paymentID)
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		b.editMessage(chatID, messageID, "❌ Платеж не найден", nil)
		return
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		// Fall through to the success message with the current balance.
	case err != nil:
		b.log.Error("confirm payment", "payment_id", paymentID, "err", err)
		b.editMessage(chatID, messageID, "❌ Не удалось подтвердить платеж, попробуйте позже", nil)
		return
	}

	account := b.ledger.GetOrInit(record.UserID)
	b.editMessage(chatID, messageID, fmt.Sprintf("✅ Оплата успешно проведена!\n\nСумма: %d руб\nНовый баланс: %d руб", record.Amount, account.Balance), nil)
}

// --- session.Messenger implementation; user id doubles as the private chat id.

func (b *Bot) SendStatus(userID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(userID, text)
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send status: %w", err)
	}
	return sent.MessageID, nil
}

func (b *Bot) EditStatus(userID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(userID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit status", "err", err)
	}
}

func (b *Bot) DeleteStatus(userID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(userID, messageID)); err != nil {
		b.log.Error("delete status", "err", err)
	}
}

func (b *Bot) SendArtifact(userID int64, media models.MediaKind, data []byte, caption string) error {
	switch media {
	case models.MediaVideo:
		cfg := tgbotapi.NewVideo(userID, tgbotapi.FileBytes{Name: "generation.mp4", Bytes: data})
		cfg.Caption = caption
		cfg.SupportsStreaming = true
		if _, err := b.api.Send(cfg); err != nil {
			return fmt.Errorf("send video: %w", err)
		}
	default:
		cfg := tgbotapi.NewPhoto(userID, tgbotapi.FileBytes{Name: "generation.jpg", Bytes: data})
		cfg.Caption = caption
		if _, err := b.api.Send(cfg); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
	}
	return nil
}

func (b *Bot) SendFailure(userID int64, text string) {
	b.sendText(userID, text)
}

// --- low-level helpers

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	return body, nil
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) editMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if keyboard != nil {
		edit.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("edit message", "err", err)
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}
