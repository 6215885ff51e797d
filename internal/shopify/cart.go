package shopify

import (
	"context"
	"fmt"

	"tester-box/internal/model"
)

// AddBundleToCart submits items as one bundle line. An empty cartID creates
// a cart; otherwise the line is added to the existing cart.
func (a *Adapter) AddBundleToCart(ctx context.Context, cartID, bundleVariantID string, items []model.Product) (*model.Cart, error) {
	if bundleVariantID == "" {
		return nil, model.NewValidationError("bundle_variant_id", "must not be empty")
	}
	line := BundleLine(bundleVariantID, items)

	if cartID == "" {
		var data cartCreateData
		vars := map[string]any{
			"input": map[string]any{"lines": []cartLineInput{line}},
		}
		if err := a.client.decode(ctx, cartCreateMutation, vars, 0, &data); err != nil {
			return nil, err
		}
		return a.cartFromPayload(ctx, "cartCreate", data.CartCreate)
	}

	var data cartLinesAddData
	vars := map[string]any{
		"cartId": cartID,
		"lines":  []cartLineInput{line},
	}
	if err := a.client.decode(ctx, cartLinesAddMutation, vars, 0, &data); err != nil {
		return nil, err
	}
	return a.cartFromPayload(ctx, "cartLinesAdd", data.CartLinesAdd)
}

// FetchCart loads a cart by id. A cart the platform no longer knows is
// reported as (nil, nil).
func (a *Adapter) FetchCart(ctx context.Context, cartID string) (*model.Cart, error) {
	if cartID == "" {
		return nil, nil
	}

	var data cartData
	if err := a.client.decode(ctx, cartQuery, map[string]any{"cartId": cartID}, 0, &data); err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, nil
	}
	return a.toCart(ctx, "getCart", data.Cart)
}

// RemoveCartLine removes a single line from a cart.
func (a *Adapter) RemoveCartLine(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	if cartID == "" {
		return nil, model.NewNotFoundError("cart")
	}
	if lineID == "" {
		return nil, model.NewValidationError("line_id", "must not be empty")
	}

	var data cartLinesRemoveData
	vars := map[string]any{
		"cartId":  cartID,
		"lineIds": []string{lineID},
	}
	if err := a.client.decode(ctx, cartLinesRemoveMutation, vars, 0, &data); err != nil {
		return nil, err
	}
	return a.cartFromPayload(ctx, "cartLinesRemove", data.CartLinesRemove)
}

// cartFromPayload applies the shared mutation result rules: userErrors
// first, then a null cart means the cart id was not accepted.
func (a *Adapter) cartFromPayload(ctx context.Context, op string, p *cartPayload) (*model.Cart, error) {
	if p == nil {
		return nil, a.client.fail(ctx, op, model.NewTransportError(fmt.Errorf("%s payload missing", op)))
	}
	if err := firstUserError(p.UserErrors); err != nil {
		a.client.logger.WarnContext(ctx, "cart mutation rejected",
			"operation", op,
			"message", p.UserErrors[0].Message,
		)
		return nil, err
	}
	if p.Cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return a.toCart(ctx, op, p.Cart)
}

func (a *Adapter) toCart(ctx context.Context, op string, n *cartNode) (*model.Cart, error) {
	cart, err := CartToModel(n)
	if err != nil {
		return nil, a.client.fail(ctx, op, model.NewTransportError(err))
	}
	return cart, nil
}
