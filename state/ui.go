package state

// UIStatus is the coarse status shown in table lists.
type UIStatus string

const (
	UIEmpty    UIStatus = "empty"
	UIOpen     UIStatus = "open"
	UIFull     UIStatus = "full"
	UIStarting UIStatus = "starting"
	UIInGame   UIStatus = "in_game"
)

func DeriveUIStatus(status Status, count, maxPlayers int, locked bool) UIStatus {
	switch {
	case status == StatusIdle || count == 0:
		return UIEmpty
	case status == StatusPlaying:
		return UIInGame
	case locked:
		return UIStarting
	case count >= maxPlayers:
		return UIFull
	default:
		return UIOpen
	}
}

var titles = []struct {
	below int
	title string
}{
	{1000, "Novice"},
	{1200, "Apprentice"},
	{1400, "Adept"},
	{1600, "Expert"},
	{1800, "Master"},
}

// TitleForRating maps a rating to the title stored with player statistics.
func TitleForRating(rating int) string {
	for _, t := range titles {
		if rating < t.below {
			return t.title
		}
	}
	return "Grandmaster"
}
