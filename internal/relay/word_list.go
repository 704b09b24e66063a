package relay

// gameNames is the base vocabulary for display names. Two distinct words are
// joined to form one name, which gives len*(len-1) possible names.
var gameNames = []string{
	"Ninja", "Blaze", "Ghost", "Raven", "Storm", "Frost", "Viper", "Hawk", "Titan", "Shade",
	"Wolf", "Drift", "Spike", "Flare", "Chaos", "Mystic", "Rogue", "Blade", "Echo", "Gloom",
	"Fury", "Scout", "Bolt", "Crush", "Grip", "Spark", "Dash", "Fang", "Sly", "Zest",
	"Rift", "Gaze", "Flux", "Haze", "Kite", "Lark", "Myth", "Nova", "Prowl", "Quest",
	"Rush", "Snipe", "Thorn", "Vex", "Wisp", "Xenon", "Yeti", "Zap", "Dusk", "Cobra",
}

// roomIDAlphabet is the restricted character set room identifiers are drawn from.
const roomIDAlphabet = "AEJZQ2357"
