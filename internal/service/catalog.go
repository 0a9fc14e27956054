package service

import (
	"fmt"
	"sync"

	"carma/internal/domain"
	"carma/internal/models"
)

// CarCatalog serves the fleet loaded from configuration.
type CarCatalog struct {
	cars    []models.Car
	carsMap map[string]models.Car
	mu      sync.RWMutex
}

func NewCarCatalog(cars []models.Car) *CarCatalog {
	c := &CarCatalog{}
	c.Replace(cars)
	return c
}

// ListCars returns the fleet in configuration order.
func (c *CarCatalog) ListCars() []models.Car {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Car, len(c.cars))
	copy(out, c.cars)
	return out
}

func (c *CarCatalog) GetCar(id string) (*models.Car, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	car, ok := c.carsMap[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCarNotFound, id)
	}
	return &car, nil
}

// Replace swaps the whole fleet, e.g. after a config reload.
func (c *CarCatalog) Replace(cars []models.Car) {
	carsMap := make(map[string]models.Car, len(cars))
	for _, car := range cars {
		carsMap[car.ID] = car
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cars = append([]models.Car(nil), cars...)
	c.carsMap = carsMap
}
