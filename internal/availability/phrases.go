package availability

// DefaultPhrases lists, per locale, page fragments that mean a listing was
// withdrawn even though the page itself still answers 200.
var DefaultPhrases = map[string][]string{
	"uk": {
		"вакансія неактуальна",
		"вакансію закрито",
		"вакансію видалено",
		"вакансія закрита",
		"оголошення видалено",
		"сторінку не знайдено",
		"такої сторінки не існує",
	},
	"ru": {
		"объявление удалено",
	},
	"en": {
		"this vacancy is no longer available",
		"job not found",
	},
}

// AllPhrases flattens DefaultPhrases in a stable locale order.
func AllPhrases() []string {
	var out []string
	for _, locale := range []string{"uk", "ru", "en"} {
		out = append(out, DefaultPhrases[locale]...)
	}
	return out
}
