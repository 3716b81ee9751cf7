package cart

import (
	"github.com/0355290812/petapp-cart/internal/api"
	"github.com/0355290812/petapp-cart/internal/domain"
)

// Reconcile decides, for one auth transition, which snapshot the store
// should expose and whether a server pull is still required. It is pure:
// callers do the I/O and feed the results back in.
//
// Call it with server == nil first; if fetchNeeded comes back true, fetch
// the authoritative cart and call it again with the response.
//
//   - logged out: keep the local snapshot as the guest cart, flag off.
//   - logged in, already initialized: local snapshot wins, no fetch.
//   - logged in, not initialized, no server data yet: fetch needed.
//   - logged in, not initialized, server data present: server cart replaces
//     the local one wholesale and the flag turns on. Any guest lines
//     accumulated before login are intentionally discarded.
func Reconcile(loggedIn, initialized bool, local []domain.CartLine, server *api.ServerCart) (snapshot []domain.CartLine, newFlag, fetchNeeded bool) {
	if !loggedIn {
		return local, false, false
	}
	if initialized {
		return local, true, false
	}
	if server == nil {
		return local, false, true
	}
	return MapServerCart(server), true, false
}

// MapServerCart converts the server representation into cart lines,
// re-deriving prices from the product documents embedded in the response.
// Prices therefore reflect the live catalog on every pull, while lines
// loaded from local storage keep their stored add-time prices. That
// asymmetry is inherited behavior, kept as is.
func MapServerCart(server *api.ServerCart) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(server.Items))
	for _, item := range server.Items {
		p := item.Product
		price := p.Price
		if p.OnSale {
			price = p.SalePrice
		}
		image := ""
		if len(p.Images) > 0 {
			image = p.Images[0]
		}
		lines = append(lines, domain.CartLine{
			ProductID:     p.ID,
			Name:          item.Name,
			UnitPrice:     price,
			OriginalPrice: p.Price,
			Image:         image,
			Quantity:      item.Quantity,
			Stock:         p.Stock,
			OnSale:        p.OnSale,
		})
	}
	return lines
}
