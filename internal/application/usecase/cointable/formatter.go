package cointable

import (
	"strings"

	"nexchain/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Formatter renders one line per table: SYMBOL price pct for each coin.
type Formatter struct {
	Tag   string
	Color bool
}

func NewFormatter(tag string) *Formatter {
	return &Formatter{Tag: tag, Color: true}
}

func (f *Formatter) paint(s, c string) string {
	if !f.Color {
		return s
	}
	return colorize(s, c)
}

// Render prints the coins in the given order. Coins without a live tick show
// their last fetched price dimmed.
func (f *Formatter) Render(order []domain.CoinPrice, live domain.PriceMap, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}
	sb.WriteString(f.paint("["+f.Tag+"] ", ansiDim))

	for i, c := range order {
		if i > 0 {
			sb.WriteString(f.paint("  ||  ", ansiDim))
		}
		if p, ok := live[c.CoinID]; ok {
			c = p
		}

		sym := strings.ToUpper(c.Symbol)
		if sym == "" {
			sym = c.CoinID
		}

		price := "--"
		if c.CurrentPrice > 0 {
			price = domain.FormatUSD(c.CurrentPrice)
		}
		pct := domain.FormatPercent(c.PercentChange24h)

		col := ansiDim
		if c.Live {
			switch c.Direction {
			case domain.DirectionUp:
				col = ansiGreen
			case domain.DirectionDown:
				col = ansiRed
			default:
				col = ansiYellow
			}
		}
		pctCol := ansiGreen
		if c.PercentChange24h < 0 {
			pctCol = ansiRed
		}

		sb.WriteString(sym)
		sb.WriteString(" ")
		sb.WriteString(f.paint(price, col))
		sb.WriteString(" ")
		sb.WriteString(f.paint(pct, pctCol))
	}

	if mode == RenderLive && f.Color {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
