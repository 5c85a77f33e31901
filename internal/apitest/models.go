package apitest

// Wire types served by the fake backend. They mirror the JSON of the real
// recipe API, not the client's Go types, so the two can drift independently.

type userJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
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

type tokenPairJSON struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type accessJSON struct {
	Access string `json:"access"`
}

type ingredientJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type newIngredientRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type pantryItemJSON struct {
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

type shoppingItemJSON struct {
	ID             int64  `json:"id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity"`
	IsChecked      bool   `json:"is_checked"`
}

type checkedRequest struct {
	IsChecked *bool `json:"is_checked"`
}

type recipeSummaryJSON struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Difficulty         string `json:"difficulty"`
	CookingTimeMinutes int    `json:"cooking_time_minutes"`
	Status             string `json:"status,omitempty"`
}

type recipeIngredientJSON struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

type recipeDetailJSON struct {
	ID                 int64                  `json:"id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	Instructions       string                 `json:"instructions"`
	Difficulty         string                 `json:"difficulty"`
	CookingTimeMinutes int                    `json:"cooking_time_minutes"`
	Status             string                 `json:"status"`
	AuthorName         string                 `json:"author_name"`
	Ingredients        []recipeIngredientJSON `json:"ingredients"`
}

type newRecipeIngredient struct {
	Ingredient int64  `json:"ingredient"`
	Quantity   string `json:"quantity"`
	Unit       string `json:"unit"`
}

type newRecipeRequest struct {
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Instructions       string                `json:"instructions"`
	Difficulty         string                `json:"difficulty"`
	CookingTimeMinutes int                   `json:"cooking_time_minutes"`
	Ingredients        []newRecipeIngredient `json:"ingredients"`
}

type detailJSON struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
