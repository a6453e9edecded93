package arena

import (
	"errors"
	"strings"
	"time"
)

// DateLayout é o formato da chave diária da arena
const DateLayout = "2006-01-02"

var (
	ErrNotFound    = errors.New("arena config not found")
	ErrInvalidDate = errors.New("invalid arena date")
)

// Team é a apresentação de um dos lados da rodada do dia
type Team struct {
	Name   string   `json:"name" yaml:"name"`
	Title  string   `json:"title" yaml:"title"`
	Slogan string   `json:"slogan" yaml:"slogan"`
	Image  string   `json:"image" yaml:"image"`
	Memes  []string `json:"memes" yaml:"memes"`
	Color  string   `json:"color" yaml:"color"`
}

// Config é a configuração da arena de um dia; TeamA corresponde ao lado A do ledger
type Config struct {
	Date      string    `json:"date" yaml:"date"`
	TeamA     Team      `json:"team_a" yaml:"team_a"`
	TeamB     Team      `json:"team_b" yaml:"team_b"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Default devolve a configuração usada quando o dia não foi cadastrado
func Default(date string) Config {
	return Config{
		Date: date,
		TeamA: Team{
			Name:   "Red Corner",
			Title:  "The Challenger",
			Slogan: "Bring the noise...",
			Memes:  []string{},
			Color:  "#ec4899",
		},
		TeamB: Team{
			Name:   "Blue Corner",
			Title:  "The Champion",
			Slogan: "Still undefeated...",
			Memes:  []string{},
			Color:  "#3b82f6",
		},
	}
}

// Topic é o tópico da rodada do ledger associada a uma data
func Topic(date string) string { return "arena-" + date }

// ValidateDate confere o formato YYYY-MM-DD
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// normalizeMemes mantém só URLs http(s), sem espaços e sem linhas vazias
func normalizeMemes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if strings.HasPrefix(m, "http") {
			out = append(out, m)
		}
	}
	return out
}
