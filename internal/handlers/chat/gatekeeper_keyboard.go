package handlers

import (
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
)

// keyboardRowSizes lays out n answer buttons: up to three fit one row,
// four to six get split across two rows, anything bigger goes in rows of
// three.
func keyboardRowSizes(n int) []int {
	switch {
	case n <= 0:
		return nil
	case n <= 3:
		return []int{n}
	case n <= 6:
		first := (n + 1) / 2
		return []int{first, n - first}
	default:
		sizes := make([]int, 0, n/3+1)
		for n > 0 {
			size := 3
			if n < size {
				size = n
			}
			sizes = append(sizes, size)
			n -= size
		}
		return sizes
	}
}

func (g *Gatekeeper) buildKeyboard(userID int64) api.InlineKeyboardMarkup {
	buttons := make([]api.InlineKeyboardButton, 0, len(g.gate.ButtonOptions))
	for i, option := range g.gate.ButtonOptions {
		data := fmt.Sprintf("%s;%d;%d", callbackPrefix, userID, i)
		buttons = append(buttons, api.NewInlineKeyboardButtonData(option, data))
	}

	rows := make([][]api.InlineKeyboardButton, 0, 4)
	offset := 0
	for _, size := range keyboardRowSizes(len(buttons)) {
		rows = append(rows, api.NewInlineKeyboardRow(buttons[offset:offset+size]...))
		offset += size
	}
	return api.NewInlineKeyboardMarkup(rows...)
}
