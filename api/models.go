package api

import "github.com/jmcleod/pantrypal/session"

// User is the profile returned by GET /users/me/.
type User = session.User

// Tokens is the pair returned by POST /login/.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Ingredient is an entry in the shared ingredient catalogue.
type Ingredient struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type newIngredientRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PantryItem is one ingredient the user has at home.
type PantryItem struct {
	ID             int64  `json:"id"`
	IngredientID   int64  `json:"ingredient_id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity"`
}

// quantityRequest is the body of POST /pantry/ and POST /shopping-list/.
type quantityRequest struct {
	Ingredient int64  `json:"ingredient"`
	Quantity   string `json:"quantity"`
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	// DifficultyAll disables the difficulty filter in a search.
	DifficultyAll Difficulty = "all"
)

type RecipeStatus string

const (
	StatusPrivate         RecipeStatus = "private"
	StatusPendingApproval RecipeStatus = "pending_approval"
	StatusPublic          RecipeStatus = "public"
	StatusRejected        RecipeStatus = "rejected"
)

// Recipe is the summary shown in lists, search results and suggestions.
type Recipe struct {
	ID                 int64        `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Difficulty         Difficulty   `json:"difficulty"`
	CookingTimeMinutes int          `json:"cooking_time_minutes"`
	Status             RecipeStatus `json:"status,omitempty"`
}

// RecipeIngredient is one line of a recipe's ingredient list. ID is the
// catalogue ingredient ID.
type RecipeIngredient struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// RecipeDetail is returned by GET /recipes/{id}/.
type RecipeDetail struct {
	Recipe
	Instructions string             `json:"instructions"`
	AuthorName   string             `json:"author_name"`
	Ingredients  []RecipeIngredient `json:"ingredients"`
}

// NewRecipe is the JSON body for POST /recipes/.
type NewRecipe struct {
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Instructions       string                `json:"instructions"`
	Difficulty         Difficulty            `json:"difficulty"`
	CookingTimeMinutes int                   `json:"cooking_time_minutes"`
	Ingredients        []NewRecipeIngredient `json:"ingredients"`
}

type NewRecipeIngredient struct {
	Ingredient int64  `json:"ingredient"`
	Quantity   string `json:"quantity"`
	Unit       string `json:"unit"`
}

// ShoppingItem is one entry on the shopping list.
type ShoppingItem struct {
	ID             int64  `json:"id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity"`
	IsChecked      bool   `json:"is_checked"`
}

type checkedRequest struct {
	IsChecked bool `json:"is_checked"`
}

type SuggestionMode string

const (
	// ModeStrict suggests recipes the pantry fully covers.
	ModeStrict SuggestionMode = "strict"
	// ModeFlexible suggests recipes missing only one or two ingredients.
	ModeFlexible SuggestionMode = "flexible"
)
