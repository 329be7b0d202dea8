// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/url"
)

// ItemClient reads item listings.
type ItemClient struct {
	c *Client
}

// Inventory returns the latest complete inventory listing.
func (i *ItemClient) Inventory(ctx context.Context) ([]Item, error) {
	return call[[]Item](ctx, i.c, get("/api/v1/inventory"), "items")
}

// List returns the latest complete listing for a location. With refresh the
// monitor asks the game client for a fresh listing and waits for it.
func (i *ItemClient) List(ctx context.Context, location string, refresh bool) ([]Item, error) {
	path := "/api/v1/items/" + url.PathEscape(location)
	if refresh {
		path += "?refresh=true"
	}
	return call[[]Item](ctx, i.c, get(path), "items")
}

// Get returns one listed item by tag.
func (i *ItemClient) Get(ctx context.Context, tag int64) (*Item, error) {
	item, err := call[Item](ctx, i.c, get(fmt.Sprintf("/api/v1/items/tag/%d", tag)), "item")
	if err != nil {
		return nil, err
	}
	return &item, nil
}
