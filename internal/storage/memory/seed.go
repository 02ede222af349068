package memory

import "github.com/vladislavdragonenkov/orderdesk/internal/domain"

// Seed задаёт справочники и товары, с которыми стартует in-memory хранилище.
type Seed struct {
	Customers     []domain.Customer
	DeliveryTypes []domain.DeliveryType
	Statuses      []domain.Status
	Products      []domain.Product
}

// DefaultSeed повторяет данные, которые миграции записывают в Postgres.
func DefaultSeed() Seed {
	return Seed{
		Customers: []domain.Customer{
			{ID: 1, Login: "alice"},
			{ID: 2, Login: "bob"},
			{ID: 3, Login: "carol"},
		},
		DeliveryTypes: []domain.DeliveryType{
			{ID: 1, Name: "courier"},
			{ID: 2, Name: "pickup"},
			{ID: 3, Name: "post"},
		},
		Statuses: []domain.Status{
			{ID: 1, Description: "cart"},
			{ID: 2, Description: "confirmed"},
			{ID: 3, Description: "shipped"},
			{ID: 4, Description: "delivered"},
			{ID: 5, Description: "canceled"},
		},
		Products: []domain.Product{
			{ID: 1, Name: "Keyboard", Price: 4990, Quantity: 50},
			{ID: 2, Name: "Mouse", Price: 1990, Quantity: 100},
			{ID: 3, Name: "Monitor", Price: 24990, Quantity: 20},
			{ID: 4, Name: "USB-C Cable", Price: 590, Quantity: 300},
		},
	}
}
