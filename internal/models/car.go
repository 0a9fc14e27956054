package models

type Car struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Type         string   `yaml:"type" json:"type"`
	Image        string   `yaml:"image" json:"image"`
	PricePerDay  float64  `yaml:"price_per_day" json:"pricePerDay"`
	Features     []string `yaml:"features" json:"features"`
	Seats        int      `yaml:"seats" json:"seats"`
	Transmission string   `yaml:"transmission" json:"transmission"`
}
