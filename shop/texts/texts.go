// Package texts holds user-facing message templates keyed by language.
package texts

import (
	"fmt"
	"strings"
)

// Lang is a user interface language code.
type Lang string

const (
	English Lang = "en"
	Russian Lang = "ru"

	// Default is used for new sessions and unknown codes.
	Default = English
)

// Languages lists the languages offered by the language picker, in order.
var Languages = []Lang{English, Russian}

var languageNames = map[Lang]string{
	English: "🇬🇧 English",
	Russian: "🇷🇺 Русский",
}

// ParseLang returns the language for code, or Default when it is unknown.
func ParseLang(code string) (Lang, bool) {
	l := Lang(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := languageNames[l]; ok {
		return l, true
	}
	return Default, false
}

// Name returns the picker label for l.
func (l Lang) Name() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return string(l)
}

// Key identifies a message template.
type Key string

const (
	ChooseLanguage   Key = "choose_language"
	ChooseService    Key = "choose_service"
	ServiceButton    Key = "service_button"
	ServiceSelected  Key = "service_selected"
	ServiceNotFound  Key = "service_not_found"
	NoService        Key = "no_service"
	MethodStars      Key = "method_stars"
	MethodCrypto     Key = "method_crypto"
	InvoiceTitle     Key = "invoice_title"
	InvoiceDesc      Key = "invoice_desc"
	InvoiceFailed    Key = "invoice_failed"
	CryptoDetails    Key = "crypto_details"
	PaymentOK        Key = "payment_ok"
	ContinueButton   Key = "continue_button"
	NoPaymentYet     Key = "no_payment_yet"
	EnterEmail       Key = "enter_email"
	ScreenshotOK     Key = "screenshot_ok"
	InvalidEmail     Key = "invalid_email"
	OrderProcessing  Key = "order_processing"
	OrderUnlocked    Key = "order_unlocked"
	SupportButton    Key = "support_button"
	SupportLocked    Key = "support_locked"
	SupportContact   Key = "support_contact"
	OrderConfirmed   Key = "order_confirmed"
	OrderCancelled   Key = "order_cancelled"
	UnknownCommand   Key = "unknown_command"
	RateLimited      Key = "rate_limited"
	UnsupportedInput Key = "unsupported_input"
)

var catalog = map[Lang]map[Key]string{
	English: {
		ChooseLanguage:   "👋 Welcome! Please choose your language:",
		ChooseService:    "Please choose the service you want to purchase:",
		ServiceButton:    "⭐ %s — %s Stars",
		ServiceSelected:  "✅ You selected: %s\n💰 Price: %s Stars or %s %s\n\nChoose how you want to pay:",
		ServiceNotFound:  "❌ Service not found. Please use /start again.",
		NoService:        "❌ Please select a service first. Use /start.",
		MethodStars:      "⭐ Telegram Stars",
		MethodCrypto:     "🪙 Crypto",
		InvoiceTitle:     "%s",
		InvoiceDesc:      "Service payment via Telegram Stars.",
		InvoiceFailed:    "⚠️ Could not create the invoice. Please try again.",
		CryptoDetails:    "🪙 Send %s %s to the address below:\n\n%s\n\nThen upload a screenshot of the transfer here.",
		PaymentOK:        "✅ Payment successful!\n\nClick the button below to continue and provide your email:",
		ContinueButton:   "✅ I've Paid (Continue)",
		NoPaymentYet:     "❌ No payment detected yet.",
		EnterEmail:       "📧 Please enter your email address so we can send you the activation:",
		ScreenshotOK:     "✅ Screenshot received!\n\n📧 Please enter your email address so we can send you the activation:",
		InvalidEmail:     "❌ Invalid email. Please enter a valid email (example: name@gmail.com)",
		OrderProcessing:  "✅ Thank you! Order #%s is being processed.\nYour activation will be sent to %s shortly.\n\n⏳ Support opens in %s",
		OrderUnlocked:    "✅ Order #%s is being processed.\n\nIf you have not received your activation yet, contact support below.",
		SupportButton:    "💬 Contact support",
		SupportLocked:    "⏳ Please wait, support opens in %s.",
		SupportContact:   "💬 Support: %s",
		OrderConfirmed:   "🎉 Your order #%s (%s) has been confirmed. Check your email %s.",
		OrderCancelled:   "❌ Your order #%s (%s) has been cancelled. Please contact support.",
		UnknownCommand:   "Type /start to begin.",
		RateLimited:      "⏳ Too many requests, slow down a little.",
		UnsupportedInput: "Unsupported action",
	},
	Russian: {
		ChooseLanguage:   "👋 Добро пожаловать! Выберите язык:",
		ChooseService:    "Выберите услугу, которую хотите приобрести:",
		ServiceButton:    "⭐ %s — %s звёзд",
		ServiceSelected:  "✅ Вы выбрали: %s\n💰 Цена: %s звёзд или %s %s\n\nВыберите способ оплаты:",
		ServiceNotFound:  "❌ Услуга не найдена. Начните заново с /start.",
		NoService:        "❌ Сначала выберите услугу. Используйте /start.",
		MethodStars:      "⭐ Telegram Stars",
		MethodCrypto:     "🪙 Криптовалюта",
		InvoiceTitle:     "%s",
		InvoiceDesc:      "Оплата услуги через Telegram Stars.",
		InvoiceFailed:    "⚠️ Не удалось выставить счёт. Попробуйте ещё раз.",
		CryptoDetails:    "🪙 Отправьте %s %s на адрес ниже:\n\n%s\n\nЗатем загрузите сюда скриншот перевода.",
		PaymentOK:        "✅ Оплата прошла успешно!\n\nНажмите кнопку ниже, чтобы продолжить и указать email:",
		ContinueButton:   "✅ Я оплатил (продолжить)",
		NoPaymentYet:     "❌ Оплата пока не поступила.",
		EnterEmail:       "📧 Укажите ваш email, чтобы мы отправили активацию:",
		ScreenshotOK:     "✅ Скриншот получен!\n\n📧 Укажите ваш email, чтобы мы отправили активацию:",
		InvalidEmail:     "❌ Неверный email. Введите корректный адрес (например: name@gmail.com)",
		OrderProcessing:  "✅ Спасибо! Заказ #%s в обработке.\nАктивация скоро придёт на %s.\n\n⏳ Поддержка откроется через %s",
		OrderUnlocked:    "✅ Заказ #%s в обработке.\n\nЕсли активация ещё не пришла, напишите в поддержку.",
		SupportButton:    "💬 Написать в поддержку",
		SupportLocked:    "⏳ Подождите, поддержка откроется через %s.",
		SupportContact:   "💬 Поддержка: %s",
		OrderConfirmed:   "🎉 Ваш заказ #%s (%s) подтверждён. Проверьте почту %s.",
		OrderCancelled:   "❌ Ваш заказ #%s (%s) отменён. Пожалуйста, свяжитесь с поддержкой.",
		UnknownCommand:   "Введите /start, чтобы начать.",
		RateLimited:      "⏳ Слишком много запросов, немного подождите.",
		UnsupportedInput: "Неподдерживаемое действие",
	},
}

// T renders key in lang, falling back to the default language and then to
// the key itself.
func T(lang Lang, key Key, args ...any) string {
	tmpl, ok := catalog[lang][key]
	if !ok {
		tmpl, ok = catalog[Default][key]
	}
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
