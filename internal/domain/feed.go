package domain

// Entry представляет отдельную запись ленты в том виде, в котором её отдал парсер.
// Published хранит исходную строку даты без разбора.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published string
}

// Feed представляет RSS/Atom-ленту с заголовком и списком записей.
type Feed struct {
	Title   string
	Link    string
	Entries []Entry
}
