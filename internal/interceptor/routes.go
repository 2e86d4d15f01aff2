package interceptor

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/xelth-com/eckpos/internal/models"
)

type routeKind int

const (
	routeOther routeKind = iota
	routeProductList
	routeProductSearch
	routeProductBarcode
	routeCustomerList
	routeCustomerPhone
	routeInventory
	routeOrderCreate
)

type route struct {
	kind      routeKind
	param     string // barcode, phone, product id or search query
	queueType string // set for writes
}

// resolve maps a request onto the resources the offline path knows about.
func resolve(method, rawPath string) route {
	u, err := url.Parse(rawPath)
	if err != nil {
		return route{queueType: models.QueueTypeRequest}
	}
	// Split before unescaping so a %2F inside a barcode stays in its segment
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for n, s := range segments {
		if unescaped, err := url.PathUnescape(s); err == nil {
			segments[n] = unescaped
		}
	}
	seg := func(i int) string {
		if i < len(segments) {
			return segments[i]
		}
		return ""
	}
	n := len(segments)

	switch method {
	case http.MethodGet:
		switch {
		case seg(0) == "products" && n == 1:
			return route{kind: routeProductList}
		case seg(0) == "products" && seg(1) == "search" && n == 2:
			return route{kind: routeProductSearch, param: u.Query().Get("q")}
		case seg(0) == "products" && seg(1) == "barcode" && n == 3:
			return route{kind: routeProductBarcode, param: seg(2)}
		case seg(0) == "customers" && n == 1:
			return route{kind: routeCustomerList}
		case seg(0) == "customers" && seg(1) == "phone" && n == 3:
			return route{kind: routeCustomerPhone, param: seg(2)}
		case seg(0) == "inventory" && n == 2:
			return route{kind: routeInventory, param: seg(1)}
		}
		return route{}

	case http.MethodPost:
		switch {
		case seg(0) == "orders" && n == 1:
			return route{kind: routeOrderCreate}
		case seg(0) == "products" && n == 1:
			return route{queueType: models.QueueTypeCreateProduct}
		case seg(0) == "customers" && n == 1:
			return route{queueType: models.QueueTypeCreateCustomer}
		}
		return route{queueType: models.QueueTypeRequest}

	case http.MethodPut, http.MethodPatch:
		switch {
		case seg(0) == "products" && n == 2:
			return route{queueType: models.QueueTypeUpdateProduct, param: seg(1)}
		case seg(0) == "inventory" && n == 2:
			return route{queueType: models.QueueTypeUpdateInventory, param: seg(1)}
		case seg(0) == "customers" && n == 2:
			return route{queueType: models.QueueTypeUpdateCustomer, param: seg(1)}
		}
		return route{queueType: models.QueueTypeRequest}
	}

	return route{}
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}
