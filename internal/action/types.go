package action

// #region action-type

// Type identifies an abstract pedagogical action.
type Type string

const (
	TypeViewContent      Type = "view_content"
	TypeAttemptQuiz      Type = "attempt_quiz"
	TypeSubmitQuiz       Type = "submit_quiz"
	TypeReviewQuiz       Type = "review_quiz"
	TypePostForum        Type = "post_forum"
	TypeSubmitAssignment Type = "submit_assignment"
)

// #endregion

// #region time-context

// TimeContext places an action relative to the learner's current module.
type TimeContext string

const (
	ContextPast    TimeContext = "past"
	ContextCurrent TimeContext = "current"
	ContextFuture  TimeContext = "future"
)

// #endregion

// #region difficulty

// Difficulty is the declared difficulty of an action or content item.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// #endregion

// #region category

// Category groups action types into learning-phase buckets.
type Category string

const (
	CategoryPre        Category = "pre"
	CategoryActive     Category = "active"
	CategoryReflective Category = "reflective"
)

// #endregion

// #region action

// Action is one entry of the catalog: a type paired with a time context,
// identified by a stable integer id assigned at catalog build time.
type Action struct {
	ID      int
	Type    Type
	Context TimeContext
}

// #endregion

// #region type-metadata

type typeMeta struct {
	Difficulty Difficulty
	Category   Category
	Quality    float64 // engagement quality weight
}

// metadata per action type. Quality weights feed engagement scoring.
var typeMetadata = map[Type]typeMeta{
	TypeViewContent:      {DifficultyEasy, CategoryPre, 0.5},
	TypeAttemptQuiz:      {DifficultyMedium, CategoryActive, 0.8},
	TypeSubmitQuiz:       {DifficultyMedium, CategoryActive, 1.0},
	TypeReviewQuiz:       {DifficultyEasy, CategoryReflective, 0.7},
	TypePostForum:        {DifficultyEasy, CategoryReflective, 0.6},
	TypeSubmitAssignment: {DifficultyHard, CategoryActive, 1.0},
}

// DifficultyOf returns the declared difficulty for an action type.
func DifficultyOf(t Type) Difficulty {
	return typeMetadata[t].Difficulty
}

// CategoryOf returns the learning-phase category for an action type.
func CategoryOf(t Type) Category {
	return typeMetadata[t].Category
}

// QualityWeight returns the engagement quality weight for an action type.
// Unknown types weigh zero.
func QualityWeight(t Type) float64 {
	return typeMetadata[t].Quality
}

// #endregion
