package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// CreateDelivery creates a new delivery for the given date. The server
// assigns the real id and the human-readable delivery number.
func (c *Client) CreateDelivery(ctx context.Context, date, notes string) (*Delivery, error) {
	c.logger.Info("creating delivery", slog.String("date", date))

	body, err := json.Marshal(createDeliveryRequest{Date: date, Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("api: encoding create delivery request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/deliveries", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var d Delivery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("api: decoding delivery response: %w", err)
	}

	return &d, nil
}

// DeleteDelivery deletes a delivery. Member orders are detached server-side
// and return to the unassigned pool.
func (c *Client) DeleteDelivery(ctx context.Context, deliveryID string) error {
	c.logger.Info("deleting delivery", slog.String("delivery_id", deliveryID))

	resp, err := c.Do(ctx, http.MethodDelete, "/deliveries/"+url.PathEscape(deliveryID), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// AddOrderToDelivery assigns an unassigned order to a delivery and returns
// the updated delivery.
func (c *Client) AddOrderToDelivery(ctx context.Context, deliveryID string, orderID int64) (*Delivery, error) {
	path := "/deliveries/" + url.PathEscape(deliveryID) + "/orders/" + strconv.FormatInt(orderID, 10)

	resp, err := c.Do(ctx, http.MethodPut, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var d Delivery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("api: decoding delivery response: %w", err)
	}

	return &d, nil
}

// RemoveOrderFromDelivery detaches an order from a delivery, returning it to
// the unassigned pool.
func (c *Client) RemoveOrderFromDelivery(ctx context.Context, deliveryID string, orderID int64) error {
	path := "/deliveries/" + url.PathEscape(deliveryID) + "/orders/" + strconv.FormatInt(orderID, 10)

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// MoveOrder reassigns an order between two deliveries as a single atomic
// server-side operation and returns the updated target delivery.
func (c *Client) MoveOrder(ctx context.Context, sourceDeliveryID string, orderID int64, targetDeliveryID string) (*Delivery, error) {
	body, err := json.Marshal(moveOrderRequest{
		SourceDeliveryID: sourceDeliveryID,
		TargetDeliveryID: targetDeliveryID,
	})
	if err != nil {
		return nil, fmt.Errorf("api: encoding move order request: %w", err)
	}

	path := "/orders/" + strconv.FormatInt(orderID, 10) + "/move"

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var d Delivery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("api: decoding delivery response: %w", err)
	}

	return &d, nil
}

// AddDeliveryItem attaches an ad-hoc item to a delivery. The server assigns
// the item id.
func (c *Client) AddDeliveryItem(ctx context.Context, deliveryID string, itemType, description string, quantity int) (*Item, error) {
	body, err := json.Marshal(addItemRequest{Type: itemType, Description: description, Quantity: quantity})
	if err != nil {
		return nil, fmt.Errorf("api: encoding add item request: %w", err)
	}

	path := "/deliveries/" + url.PathEscape(deliveryID) + "/items"

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("api: decoding item response: %w", err)
	}

	return &item, nil
}

// DeleteDeliveryItem removes an ad-hoc item from a delivery.
func (c *Client) DeleteDeliveryItem(ctx context.Context, deliveryID string, itemID int64) error {
	path := "/deliveries/" + url.PathEscape(deliveryID) + "/items/" + strconv.FormatInt(itemID, 10)

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}

// CompleteOrders marks all orders of a delivery complete for the given
// production date. The state transition happens entirely server-side.
func (c *Client) CompleteOrders(ctx context.Context, deliveryID, productionDate string) error {
	c.logger.Info("completing orders",
		slog.String("delivery_id", deliveryID),
		slog.String("production_date", productionDate),
	)

	body, err := json.Marshal(completeOrdersRequest{ProductionDate: productionDate})
	if err != nil {
		return fmt.Errorf("api: encoding complete orders request: %w", err)
	}

	path := "/deliveries/" + url.PathEscape(deliveryID) + "/complete"

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()

	return nil
}
