// internal/gateway/delivery.go
package gateway

import (
	"context"

	"github.com/go-resty/resty/v2"
)

// DeliveryCodeService generates the delivery verification code for an order.
// Failures must not abort the saga that triggered the call.
type DeliveryCodeService interface {
	GenerateCode(ctx context.Context, orderID, retailerID string) (string, error)
}

// Notifier pushes the delivery code to the retailer. Fire-and-forget.
type Notifier interface {
	NotifyDeliveryCode(ctx context.Context, retailerID, orderID, code string) error
}

type lmsClient struct {
	client *resty.Client
}

// NewDeliveryCodeService creates a DeliveryCodeService backed by the LMS.
func NewDeliveryCodeService(endpoint string, cfg ClientConfig) DeliveryCodeService {
	return &lmsClient{client: newClient(endpoint, cfg)}
}

func (c *lmsClient) GenerateCode(ctx context.Context, orderID, retailerID string) (string, error) {
	var out struct {
		Data struct {
			DeliveryCode string `json:"deliveryCode"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"orderId": orderID, "retailerId": retailerID}).
		SetResult(&out).
		Post("/deliveryVerification/generateCode")
	if err != nil || resp.IsError() {
		return "", upstreamError("lms", resp, err)
	}
	return out.Data.DeliveryCode, nil
}

type notificationClient struct {
	client *resty.Client
}

// NewNotifier creates a Notifier backed by the notification service.
func NewNotifier(endpoint string, cfg ClientConfig) Notifier {
	return &notificationClient{client: newClient(endpoint, cfg)}
}

func (c *notificationClient) NotifyDeliveryCode(ctx context.Context, retailerID, orderID, code string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"customerId":   []string{retailerID},
			"templateName": "DELIVERY_CODE_GENERATED",
			"language":     "EN",
			"sender":       "orderpay",
			"args":         map[string]string{"orderId": orderID, "deliveryCode": code},
		}).
		Post("/messages")
	if err != nil || resp.IsError() {
		return upstreamError("notification", resp, err)
	}
	return nil
}
