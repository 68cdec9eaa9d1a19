// Package knowledge stores menu context used to ground chat answers.
package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MenuItem is one dish offered by the restaurant.
type MenuItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Category    string `yaml:"category"`
}

// Chunk renders the item as a single context line.
func (m MenuItem) Chunk() string {
	return fmt.Sprintf("Name: %s. Category: %s. Price: $%s. Description: %s", m.Name, m.Category, m.Price, m.Description)
}

// seedFile is the YAML layout accepted by LoadSeedFile.
type seedFile struct {
	Items []MenuItem `yaml:"items"`
}

// LoadSeedFile reads menu items from a YAML file.
func LoadSeedFile(path string) ([]MenuItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse menu seed %s: %w", path, err)
	}
	for i, item := range f.Items {
		if item.Name == "" {
			return nil, fmt.Errorf("menu seed %s: item %d has no name", path, i)
		}
	}
	return f.Items, nil
}

// DefaultMenu is the built-in menu used when no seed file is configured.
var DefaultMenu = []MenuItem{
	{Name: "Tom Yum Goong", Price: "18.50", Category: "Soup",
		Description: "World-famous Thai spicy prawn soup with lemongrass, galangal, kaffir lime leaves, and fresh chilies. Contains shellfish."},
	{Name: "Pad Thai", Price: "14.95", Category: "Noodles",
		Description: "Classic stir-fried rice noodles with egg, peanuts, bean sprouts, and tamarind sauce. Choice of chicken, tofu, or shrimp."},
	{Name: "Green Curry", Price: "16.50", Category: "Curry",
		Description: "Spicy and aromatic green curry with coconut milk, bamboo shoots, Thai basil, and eggplant. Served with jasmine rice."},
	{Name: "Som Tum (Papaya Salad)", Price: "11.00", Category: "Salad",
		Description: "Crispy shredded green papaya salad with cherry tomatoes, green beans, peanuts, lime, and chilies. Sweet, sour, and spicy."},
	{Name: "Massaman Curry", Price: "19.00", Category: "Curry",
		Description: "Rich and mild curry with roasted spices, peanuts, potatoes, onions, and slow-cooked beef chunks."},
	{Name: "Mango Sticky Rice", Price: "9.50", Category: "Dessert",
		Description: "Sweet coconut sticky rice served with fresh ripe mango and topped with roasted mung beans. A perfect dessert."},
	{Name: "Pad See Ew", Price: "14.50", Category: "Noodles",
		Description: "Stir-fried flat rice noodles with soy sauce, egg, and Chinese kale. A savory non-spicy favorite."},
	{Name: "Tom Kha Gai", Price: "15.50", Category: "Soup",
		Description: "Creamy coconut chicken soup with galangal, lemongrass, and mushrooms. Mildly spiced and sour."},
	{Name: "Spring Rolls", Price: "8.00", Category: "Appetizer",
		Description: "Crispy fried vegetable spring rolls served with sweet chili plum sauce. Vegan friendly."},
	{Name: "Chicken Satay", Price: "10.50", Category: "Appetizer",
		Description: "Grilled marinated chicken skewers served with peanut sauce and cucumber relish."},
	{Name: "Pineapple Fried Rice", Price: "17.00", Category: "Rice",
		Description: "Fried rice with pineapple chunks, egg, cashews, raisins, and curry powder. Served in a pineapple half."},
	{Name: "Panang Curry", Price: "16.50", Category: "Curry",
		Description: "Thick, salty, and sweet red curry with kaffir lime leaves and peanuts. Creamier than red curry."},
	{Name: "Basil Stir Fry (Pad Kra Pao)", Price: "15.00", Category: "Main",
		Description: "Spicy minced pork or chicken stir-fried with holy basil, garlic, and chilies. Topped with a fried egg."},
	{Name: "Thai Iced Tea", Price: "5.00", Category: "Drink",
		Description: "Sweet Ceylon tea brewed with spices and topped with evaporated milk. Iconic orange drink."},
	{Name: "Khao Soi", Price: "16.00", Category: "Noodles",
		Description: "Northern Thai curry noodle soup with egg noodles, pickled mustard greens, and crispy noodles on top."},
	{Name: "Crab Fried Rice", Price: "22.00", Category: "Rice",
		Description: "Premium fried rice with chunks of real crab meat, egg, and spring onions."},
	{Name: "Garlic Pepper Prawns", Price: "24.00", Category: "Main",
		Description: "Deep-fried large prawns topped with crispy garlic and black pepper sauce."},
	{Name: "Coconut Ice Cream", Price: "7.50", Category: "Dessert",
		Description: "Homemade coconut milk ice cream served with roasted peanuts and chocolate syrup."},
	{Name: "Singha Beer", Price: "6.00", Category: "Drink",
		Description: "Premium Thai lager beer."},
	{Name: "Crying Tiger Beef", Price: "23.00", Category: "Main",
		Description: "Grilled marinated sirloin steak served with spicy tamarind dipping sauce (Nam Jim Jaew)."},
}
