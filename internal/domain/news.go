package domain

// SourceKind различает стратегии получения новостей.
type SourceKind string

const (
	KindRSS     SourceKind = "rss"
	KindNewsAPI SourceKind = "newsapi"
)

// RawItem - запись источника до нормализации.
type RawItem struct {
	Kind       SourceKind
	Title      string
	Link       string
	Summary    string
	Published  string
	SourceName string
	// Origin - адрес ленты или эндпоинта, откуда пришла запись.
	Origin string
}

// NewsItem - каноническая запись таблицы market_news.
// URL является ключом дедупликации.
type NewsItem struct {
	ID          int64  `json:"id,omitempty"`
	Headline    string `json:"headline"`
	Content     string `json:"content"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

// SourceFailure описывает ошибку одного источника, пропущенную в режиме изоляции
// или ставшую причиной остановки прогона.
type SourceFailure struct {
	Kind   SourceKind `json:"kind"`
	Origin string     `json:"origin"`
	Error  string     `json:"error"`
}

// SourceStats - счетчики по одной стратегии.
type SourceStats struct {
	Considered int `json:"considered"`
	Inserted   int `json:"inserted"`
	Skipped    int `json:"skipped"`
}

// Summary - итог одного прогона сбора.
type Summary struct {
	Considered int                        `json:"considered"`
	Inserted   int                        `json:"inserted"`
	Skipped    int                        `json:"skipped"`
	PerSource  map[SourceKind]SourceStats `json:"per_source"`
	Failures   []SourceFailure            `json:"failures,omitempty"`
}

// NewSummary возвращает пустой итог с инициализированной картой счетчиков.
func NewSummary() Summary {
	return Summary{PerSource: make(map[SourceKind]SourceStats)}
}

// Count учитывает одну рассмотренную запись.
func (s *Summary) Count(kind SourceKind, inserted bool) {
	st := s.PerSource[kind]
	st.Considered++
	s.Considered++
	if inserted {
		st.Inserted++
		s.Inserted++
	} else {
		st.Skipped++
		s.Skipped++
	}
	s.PerSource[kind] = st
}
