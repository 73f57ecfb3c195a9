// Package courier talks to the Steadfast-style cash-on-delivery courier
// API used for parcel handover.
package courier

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/rodela-order-api/internal/domain/order"
)

const defaultTimeout = 15 * time.Second

// Config carries courier API credentials and endpoint.
type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Client implements order.CourierClient against the courier's HTTP API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateShipment registers the order as a consignment with the courier.
// The order id doubles as the courier invoice so parcels can be traced
// back without a mapping table.
func (c *Client) CreateShipment(ctx context.Context, o *order.Order) (*order.Shipment, error) {
	body := encodeCreateOrder(o)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/create_order", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Secret-Key", c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call courier")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read courier response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("courier returned %d: %s", resp.StatusCode, data)
	}

	shipment, err := decodeConsignment(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode courier response")
	}
	return shipment, nil
}

func encodeCreateOrder(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("invoice")
	e.Str(o.ID)
	e.FieldStart("recipient_name")
	e.Str(o.CustomerName)
	e.FieldStart("recipient_phone")
	e.Str(o.Phone)
	e.FieldStart("recipient_address")
	e.Str(o.Address)
	e.FieldStart("cod_amount")
	e.RawStr(o.Amount.String())
	e.FieldStart("note")
	e.Str(itemNote(o.Items))
	e.ObjEnd()
	return e.Bytes()
}

// itemNote summarizes the parcel contents for the delivery rider.
func itemNote(items []order.LineItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(it.Name)
		if it.VariantName != "" {
			b.WriteString(" (" + it.VariantName + ")")
		}
		b.WriteString(" x" + strconv.FormatInt(it.Quantity, 10))
	}
	return b.String()
}

// decodeConsignment pulls consignment_id and tracking_code out of the
// courier's response envelope. The courier serves consignment ids as
// numbers, they are kept as strings on our side.
func decodeConsignment(data []byte) (*order.Shipment, error) {
	var shipment order.Shipment
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "consignment" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "consignment_id":
				switch d.Next() {
				case jx.Number:
					v, err := d.Int64()
					shipment.ConsignmentID = strconv.FormatInt(v, 10)
					return err
				default:
					v, err := d.Str()
					shipment.ConsignmentID = v
					return err
				}
			case "tracking_code":
				v, err := d.Str()
				shipment.TrackingCode = v
				return err
			default:
				return d.Skip()
			}
		})
	}); err != nil {
		return nil, err
	}
	if shipment.ConsignmentID == "" || shipment.TrackingCode == "" {
		return nil, errors.New("response missing consignment id or tracking code")
	}
	return &shipment, nil
}
