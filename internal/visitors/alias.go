package visitors

import "hash/fnv"

var visitorAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Smart", "Busy",
	"Bright", "Cheerful", "Creative", "Elegant", "Friendly", "Peaceful", "Nimble", "Quick", "Bold", "Calm",
	"Daring", "Lively", "Merry", "Quiet", "Radiant", "Spirited", "Vivid", "Warm", "Witty", "Zippy",
}

var visitorAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Cat", "Bear", "Penguin", "Kangaroo", "Parrot", "Giraffe", "Duck", "Raccoon",
	"Dolphin", "Whale", "Seahorse", "Turtle", "Octopus", "Falcon", "Hawk", "Swan", "Crane", "Heron",
	"Tiger", "Wolf", "Rabbit", "Hedgehog", "Squirrel", "Lynx", "Badger", "Moose", "Crow", "Finch",
}

// Alias returns an anonymized display name for the given visitor fingerprint.
// Used when a referral has no authenticated identity attached.
func Alias(fingerprint string) string {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	index := int(h.Sum32())

	adjIndex := index % len(visitorAdjectives)
	animalIndex := (index / len(visitorAdjectives)) % len(visitorAnimals)

	return visitorAdjectives[adjIndex] + " " + visitorAnimals[animalIndex]
}
