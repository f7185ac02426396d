package strategy

import (
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// CheckExit returns an exit request when the held side's bid has reached
// the eject price. Every other position is held to expiry.
func CheckExit(pos domain.OpenPosition, bid, ejectPrice float64) (domain.ExitSignal, bool) {
	if bid < ejectPrice {
		return domain.ExitSignal{}, false
	}
	return domain.ExitSignal{
		Action: domain.ExitSellToClose,
		Reason: fmt.Sprintf("eject bid %.2f", bid),
		Side:   pos.Side,
	}, true
}
