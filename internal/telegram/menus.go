package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evolark/photogenbot/internal/models"
)

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🖼️ Создать изображение", "menu_generate")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎬 Создать видео", "menu_video")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✨ Редактировать фото", "model_image-to-image")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💰 Мой баланс", "menu_balance")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Пополнить баланс", "menu_topup")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", "menu_stats")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", "menu_help")),
	)
}

const mainMenuText = "🎨 AI Photograph Bot\n\n" +
	"Добро пожаловать! Я помогу вам:\n" +
	"• Создать изображения и видео из текста\n" +
	"• Редактировать фотографии с помощью AI\n\n" +
	"Выберите действие:"

func (b *Bot) generationMenu() (string, tgbotapi.InlineKeyboardMarkup) {
	ti, _ := b.catalog.Get("text-to-image")
	ii, _ := b.catalog.Get("image-to-image")
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🖼️ Из текста (%d руб)", ti.Price), "model_text-to-image")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✨ Из изображения (%d руб)", ii.Price), "model_image-to-image")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")),
	)
	text := "🖼️ Создание изображений\n\nВыберите тип генерации."
	return text, keyboard
}

func (b *Bot) videoMenu() (string, tgbotapi.InlineKeyboardMarkup) {
	tv, _ := b.catalog.Get("text-to-video")
	iv, _ := b.catalog.Get("image-to-video")
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🎬 Из текста (%d руб)", tv.Price), "model_text-to-video")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🎬 Из изображения (%d руб)", iv.Price), "model_image-to-video")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")),
	)
	text := "🎬 Создание видео\n\nВыберите тип генерации."
	return text, keyboard
}

func (b *Bot) balanceView(userID int64) (string, tgbotapi.InlineKeyboardMarkup) {
	account := b.ledger.GetOrInit(userID)

	text := fmt.Sprintf("💰 Ваш баланс: %d руб\n\nБесплатные попытки:\n", account.Balance)
	for _, spec := range b.catalog.All() {
		remaining := spec.FreeLimit - account.UsageOf(spec.ID)
		if remaining < 0 {
			remaining = 0
		}
		text += fmt.Sprintf("• %s: %d/%d\n", spec.Name, remaining, spec.FreeLimit)
	}
	text += fmt.Sprintf("\nВсего потрачено: %d руб", account.TotalSpent)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Пополнить баланс", "menu_topup")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")),
	)
	return text, keyboard
}

func (b *Bot) topupMenu() (string, tgbotapi.InlineKeyboardMarkup) {
	var rows [][]tgbotapi.InlineKeyboardButton
	amounts := b.cfg.TopupAmounts
	for i := 0; i < len(amounts); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d руб", amounts[i]), fmt.Sprintf("topup_%d", amounts[i])),
		}
		if i+1 < len(amounts) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d руб", amounts[i+1]), fmt.Sprintf("topup_%d", amounts[i+1])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")))

	text := "💳 Пополнение баланса\n\n" +
		"Выберите сумму для пополнения.\n\n" +
		"После оплаты нажмите «✅ Я оплатил», и средства поступят на баланс."
	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) statsView(userID int64) (string, tgbotapi.InlineKeyboardMarkup) {
	account := b.ledger.GetOrInit(userID)

	text := "📊 Ваша статистика\n\nИспользовано генераций:\n"
	total := 0
	for _, spec := range b.catalog.All() {
		used := account.UsageOf(spec.ID)
		total += used
		text += fmt.Sprintf("• %s: %d раз\n", spec.Name, used)
	}
	days := int(time.Since(account.CreatedAt).Hours() / 24)
	text += fmt.Sprintf("\nВсего генераций: %d\nВсего потрачено: %d руб\nДней использования: %d", total, account.TotalSpent, days)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "menu_back")),
	)
	return text, keyboard
}

func (b *Bot) helpText() string {
	text := "🎨 AI Photograph Bot — помощь\n\nДоступные модели:\n"
	for _, spec := range b.catalog.All() {
		text += fmt.Sprintf("• %s — %d руб (%d бесплатно)\n", spec.Name, spec.Price, spec.FreeLimit)
	}
	text += "\nКоманды:\n" +
		"/start — главное меню\n" +
		"/balance — мой баланс\n" +
		"/topup — пополнить баланс\n" +
		"/stats — статистика\n" +
		"/help — эта справка"
	return text
}

// selectionText is shown right after a model is chosen.
func selectionText(spec models.ModelSpec, free bool, balance int) string {
	var text string
	switch {
	case free:
		text = fmt.Sprintf("🎨 %s\n\nБесплатная попытка! (обычно %d руб)\n\n", spec.Name, spec.Price)
	case balance >= spec.Price:
		text = fmt.Sprintf("🎨 %s\n\nСтоимость: %d руб\nВаш баланс: %d руб\n\n", spec.Name, spec.Price, balance)
	default:
		text = fmt.Sprintf("❌ Недостаточно средств!\n\nНужно: %d руб\nВаш баланс: %d руб\n\n", spec.Price, balance)
	}
	if spec.RequiresImage() {
		text += "Отправьте изображение:"
	} else {
		text += "Опишите что создать:"
	}
	return text
}
