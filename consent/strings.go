package consent

// pageStrings is the user-visible text of the consent surface for one
// locale. Scope titles and backend error messages are not here: scopes
// arrive localized from the backend, and backend errors are shown verbatim.
type pageStrings struct {
	// consent page
	WantsAccess string
	Allow       string
	Deny        string

	// charge page
	PaymentTitle        string
	WalletBalance       string
	ChargeExpired       string
	InsufficientBalance string
	// AutoApprove is a printf format taking the client name; the limit
	// input follows it.
	AutoApprove string
	Approve     string
	Reject      string

	// topup page. TopupVia is a printf format taking the client name.
	TopupTitle  string
	TopupVia    string
	Amount      string
	Cancel      string
	TopupSubmit string

	// done page
	AccessGranted   string
	AccessDenied    string
	PaymentApproved string
	PaymentRejected string
	TopupCancelled  string
	// TopupStarted is a printf format taking the amount.
	TopupStarted string
	CloseHint    string

	// error page and form rejections
	ErrorTitle         string
	ErrorHint          string
	CloseLabel         string
	UnknownDecision    string
	ConsentGone        string
	ChargeGone         string
	TopupGone          string
	AmountNotPositive  string
	ServiceUnavailable string
}

var pageText = map[string]pageStrings{
	"az": {
		WantsAccess: "Kimlik hesabınıza daxil olmaq istəyir:",
		Allow:       "İcazə ver",
		Deny:        "İmtina et",

		PaymentTitle:        "Ödəniş sorğusu",
		WalletBalance:       "Pul kisəsi balansı:",
		ChargeExpired:       "Bu ödəniş sorğusunun vaxtı bitib.",
		InsufficientBalance: "Bu ödəniş üçün balans kifayət deyil.",
		AutoApprove:         "%s tətbiqindən gələcək ödənişləri avtomatik təsdiqlə, limit:",
		Approve:             "Təsdiqlə",
		Reject:              "Rədd et",

		TopupTitle:  "Balans artımı",
		TopupVia:    "%s vasitəsilə balans artımı",
		Amount:      "Məbləğ",
		Cancel:      "Ləğv et",
		TopupSubmit: "Artır",

		AccessGranted:   "Giriş verildi.",
		AccessDenied:    "Giriş rədd edildi.",
		PaymentApproved: "Ödəniş təsdiqləndi.",
		PaymentRejected: "Ödəniş rədd edildi.",
		TopupCancelled:  "Balans artımı ləğv edildi.",
		TopupStarted:    "%.2f məbləğində balans artımı başladı.",
		CloseHint:       "Bu pəncərəni bağlaya bilərsiniz.",

		ErrorTitle:         "Xəta baş verdi",
		ErrorHint:          "Bu pəncərəni bağlayın və tətbiqdən yenidən cəhd edin.",
		CloseLabel:         "Bağla",
		UnknownDecision:    "Naməlum qərar.",
		ConsentGone:        "Bu sorğunun vaxtı bitib və ya artıq cavablandırılıb. Tətbiqdən yenidən başlayın.",
		ChargeGone:         "Bu ödəniş sorğusunun vaxtı bitib və ya artıq cavablandırılıb.",
		TopupGone:          "Bu balans artımının vaxtı bitib və ya artıq cavablandırılıb.",
		AmountNotPositive:  "Sıfırdan böyük məbləğ daxil edin.",
		ServiceUnavailable: "Kimlik xidməti əlçatan deyil. Bir azdan yenidən cəhd edin.",
	},
	"en": {
		WantsAccess: "wants to access your Kimlik account",
		Allow:       "Allow",
		Deny:        "Deny",

		PaymentTitle:        "Payment request",
		WalletBalance:       "Wallet balance:",
		ChargeExpired:       "This payment request has expired.",
		InsufficientBalance: "Insufficient balance for this payment.",
		AutoApprove:         "Auto-approve future payments from %s up to",
		Approve:             "Approve",
		Reject:              "Reject",

		TopupTitle:  "Top up",
		TopupVia:    "Top up via %s",
		Amount:      "Amount",
		Cancel:      "Cancel",
		TopupSubmit: "Top up",

		AccessGranted:   "Access granted.",
		AccessDenied:    "Access denied.",
		PaymentApproved: "Payment approved.",
		PaymentRejected: "Payment rejected.",
		TopupCancelled:  "Topup cancelled.",
		TopupStarted:    "Topup of %.2f started.",
		CloseHint:       "You can close this window.",

		ErrorTitle:         "Something went wrong",
		ErrorHint:          "Close this window and try again from the application.",
		CloseLabel:         "Close",
		UnknownDecision:    "Unknown decision.",
		ConsentGone:        "This request has expired or was already answered. Restart from the application.",
		ChargeGone:         "This payment request has expired or was already answered.",
		TopupGone:          "This topup has expired or was already answered.",
		AmountNotPositive:  "Enter an amount greater than zero.",
		ServiceUnavailable: "The Kimlik service is unavailable. Try again shortly.",
	},
	"ru": {
		WantsAccess: "запрашивает доступ к вашему аккаунту Kimlik",
		Allow:       "Разрешить",
		Deny:        "Отклонить",

		PaymentTitle:        "Платёжный запрос",
		WalletBalance:       "Баланс кошелька:",
		ChargeExpired:       "Срок действия этого платёжного запроса истёк.",
		InsufficientBalance: "Недостаточно средств для этого платежа.",
		AutoApprove:         "Автоматически одобрять будущие платежи от %s до",
		Approve:             "Одобрить",
		Reject:              "Отклонить",

		TopupTitle:  "Пополнение",
		TopupVia:    "Пополнение через %s",
		Amount:      "Сумма",
		Cancel:      "Отмена",
		TopupSubmit: "Пополнить",

		AccessGranted:   "Доступ предоставлен.",
		AccessDenied:    "Доступ отклонён.",
		PaymentApproved: "Платёж одобрен.",
		PaymentRejected: "Платёж отклонён.",
		TopupCancelled:  "Пополнение отменено.",
		TopupStarted:    "Пополнение на %.2f начато.",
		CloseHint:       "Это окно можно закрыть.",

		ErrorTitle:         "Что-то пошло не так",
		ErrorHint:          "Закройте это окно и повторите попытку из приложения.",
		CloseLabel:         "Закрыть",
		UnknownDecision:    "Неизвестное решение.",
		ConsentGone:        "Этот запрос истёк или уже был обработан. Начните заново из приложения.",
		ChargeGone:         "Этот платёжный запрос истёк или уже был обработан.",
		TopupGone:          "Это пополнение истекло или уже было обработано.",
		AmountNotPositive:  "Введите сумму больше нуля.",
		ServiceUnavailable: "Сервис Kimlik недоступен. Повторите попытку позже.",
	},
}

// textFor returns the string table for locale. locale must already be
// normalized.
func textFor(locale string) pageStrings {
	return pageText[locale]
}
