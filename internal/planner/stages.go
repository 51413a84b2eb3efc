package planner

// Stage is a user-facing phase of generation with its target progress.
type Stage struct {
	Label   string
	Percent int
}

// Stages are walked in order. The provider is called while the stage at
// generationStage is active.
var Stages = []Stage{
	{"Analyzing your travel preferences", 5},
	{"Researching destination highlights", 15},
	{"Matching your budget allocation", 25},
	{"Generating your day-by-day plan", 40},
	{"Selecting restaurants and dining", 55},
	{"Arranging stays and local transport", 65},
	{"Optimizing your route", 75},
	{"Calculating costs", 85},
	{"Reviewing the itinerary", 95},
	{"Finalizing your itinerary", 100},
}

const generationStage = 3
