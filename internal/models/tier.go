package models

// Tier is the reputation label derived from a user's level points.
type Tier string

const (
	TierNewcomer     Tier = "Newcomer"
	TierBeginner     Tier = "Beginner"
	TierIntermediate Tier = "Intermediate"
	TierExpert       Tier = "Expert"
	TierVeteran      Tier = "Veteran"
	TierGrandmaster  Tier = "Grandmaster"
)
