package booking

import "context"

// ListDishes returns the menu, newest first.
func (service *Service) ListDishes(ctx context.Context) ([]Dish, error) {
	return service.store.ListDishes(ctx)
}

// CreateDish adds a menu entry and returns its id.
func (service *Service) CreateDish(ctx context.Context, dish Dish) (int64, error) {
	dishID, operationError := service.store.InsertDish(ctx, dish, service.nowFn().UTC())
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateDish,
		DishID:    dishID,
		Error:     operationError,
	})
	return dishID, operationError
}

// DeleteDish removes a menu entry or returns ErrDishNotFound.
func (service *Service) DeleteDish(ctx context.Context, dishID int64) error {
	operationError := service.store.DeleteDish(ctx, dishID)
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteDish,
		DishID:    dishID,
		Error:     operationError,
	})
	return operationError
}
