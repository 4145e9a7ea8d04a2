package core

import (
	"context"
	"fmt"

	"amari/internal/inventory"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// ListInventories returns every stored inventory ordered by id.
func (s *Service) ListInventories(ctx context.Context) ([]Inventory, error) {
	var out []Inventory
	err := s.observe(ctx, "list_inventories", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			out = v.ListInventories()
			return nil
		})
	})
	return out, err
}

// GetInventory returns one inventory.
func (s *Service) GetInventory(ctx context.Context, id string) (Inventory, error) {
	var out Inventory
	err := s.observe(ctx, "get_inventory", func(ctx context.Context) error {
		var err error
		out, err = s.findInventory(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) findInventory(ctx context.Context, id string) (Inventory, error) {
	var out Inventory
	err := s.store.View(ctx, func(v TransactionView) error {
		inv, ok := v.FindInventory(id)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInventory, ID: id}
		}
		out = inv
		return nil
	})
	return out, err
}

// CreateInventory persists a new inventory. An empty id is generated.
func (s *Service) CreateInventory(ctx context.Context, inv Inventory) (Inventory, Result, error) {
	var created Inventory
	res, err := s.run(ctx, "create_inventory", func(tx Transaction) error {
		var err error
		created, err = tx.CreateInventory(inv)
		return err
	})
	return created, res, err
}

// UpdateInventory mutates an inventory using the provided mutator.
func (s *Service) UpdateInventory(ctx context.Context, id string, mutator func(*Inventory) error) (Inventory, Result, error) {
	var updated Inventory
	res, err := s.run(ctx, "update_inventory", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateInventory(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteInventory removes an inventory and its stored resolutions.
func (s *Service) DeleteInventory(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_inventory", func(tx Transaction) error {
		return tx.DeleteInventory(id)
	})
}

// ExpandInventory returns the inventory with its implicit items.
func (s *Service) ExpandInventory(ctx context.Context, id string) (inventory.Expanded, error) {
	var out inventory.Expanded
	err := s.observe(ctx, "expand_inventory", func(ctx context.Context) error {
		inv, err := s.findInventory(ctx, id)
		if err != nil {
			return err
		}
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		out = st.expander.ExpandInventory(inv)
		return nil
	})
	return out, err
}

// InventoryItem returns one member of the expanded inventory. Slugs that are
// neither owned nor implied yield taxonomy.ErrNotFound.
func (s *Service) InventoryItem(ctx context.Context, id, slug string) (inventory.Item, error) {
	var out inventory.Item
	err := s.observe(ctx, "inventory_item", func(ctx context.Context) error {
		inv, err := s.findInventory(ctx, id)
		if err != nil {
			return err
		}
		st, err := s.state(ctx)
		if err != nil {
			return err
		}
		item, ok := st.expander.ExpandDetailed(inv.Items).Items[slug]
		if !ok {
			return fmt.Errorf("inventory %s item %s: %w", id, slug, taxonomy.ErrNotFound)
		}
		out = item
		return nil
	})
	return out, err
}
