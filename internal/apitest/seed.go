package apitest

import "github.com/jmcleod/pantrypal/internal/uuid"

const catalogueAuthor = "pantrypal"

func (s *Server) seed() {
	s.ingredients = make(map[int64]*ingredient)
	s.recipes = make(map[int64]*recipe)

	ids := make(map[string]int64)
	for _, name := range []string{"Tomato", "Onion", "Garlic", "Basil", "Spaghetti", "Egg", "Rice", "Beef"} {
		id := s.newIDLocked()
		s.ingredients[id] = &ingredient{id: id, name: name}
		ids[name] = id
	}

	add := func(title, description, difficulty string, minutes int, ings ...recipeIngredient) {
		id := s.newIDLocked()
		s.recipes[id] = &recipe{
			id:           id,
			title:        title,
			description:  description,
			instructions: "Prepare the ingredients, then cook until done.",
			difficulty:   difficulty,
			minutes:      minutes,
			status:       "public",
			authorName:   catalogueAuthor,
			ingredients:  ings,
		}
	}
	ri := func(name, quantity, unit string) recipeIngredient {
		return recipeIngredient{ingredientID: ids[name], quantity: quantity, unit: unit}
	}

	add("Tomato Basil Spaghetti", "A quick weeknight pasta.", "easy", 20,
		ri("Spaghetti", "200", "g"), ri("Tomato", "3", "pcs"), ri("Basil", "10", "g"), ri("Garlic", "2", "cloves"))
	add("Egg Fried Rice", "Leftover rice, done right.", "easy", 15,
		ri("Rice", "300", "g"), ri("Egg", "2", "pcs"), ri("Onion", "1", "pcs"), ri("Garlic", "1", "clove"))
	add("Bo Kho", "Slow-braised beef stew.", "hard", 120,
		ri("Beef", "500", "g"), ri("Tomato", "2", "pcs"), ri("Onion", "1", "pcs"), ri("Garlic", "3", "cloves"))
	add("Garlic Omelette", "Two minutes of prep.", "easy", 10,
		ri("Egg", "3", "pcs"), ri("Garlic", "1", "clove"))
}

func newToken(kind string) string {
	return kind + "-" + uuid.New()
}
