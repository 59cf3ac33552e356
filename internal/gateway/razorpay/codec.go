package razorpay

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/ekagifts/storefront/internal/domain/order"
)

func encodeOrderRequest(req order.PaymentRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount)
	e.FieldStart("currency")
	e.Str(req.Currency)
	e.FieldStart("receipt")
	e.Str(req.Receipt)
	if len(req.Notes) > 0 {
		keys := make([]string, 0, len(req.Notes))
		for k := range req.Notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		e.FieldStart("notes")
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(req.Notes[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(data []byte) (*order.PaymentSession, error) {
	var s order.PaymentSession
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			s.ID, err = d.Str()
		case "amount":
			s.Amount, err = d.Int64()
		case "currency":
			s.Currency, err = d.Str()
		case "receipt":
			s.Receipt, err = optStr(d)
		case "status":
			s.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeAPIError builds an APIError from an error body of the form
// {"error":{"code":"...","description":"..."}}. Undecodable bodies yield an
// error carrying the status only.
func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	d := jx.DecodeBytes(data)
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "code":
				apiErr.Code, err = optStr(d)
			case "description":
				apiErr.Description, err = optStr(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return apiErr
}

// decodeWebhook reads the event name and the payment and order entities of a
// webhook payload:
//
//	{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_..","order_id":"order_.."}},"order":{"entity":{"id":"order_.."}}}}
func decodeWebhook(data []byte) (*order.WebhookEvent, error) {
	var (
		ev          order.WebhookEvent
		paymentOrd  string
		orderEntity string
	)
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			v, err := d.Str()
			ev.Type = order.WebhookEventType(v)
			return err
		case "payload":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "payment":
					return decodeEntity(d, func(d *jx.Decoder, key []byte) error {
						var err error
						switch string(key) {
						case "id":
							ev.PaymentID, err = optStr(d)
						case "order_id":
							paymentOrd, err = optStr(d)
						default:
							err = d.Skip()
						}
						return err
					})
				case "order":
					return decodeEntity(d, func(d *jx.Decoder, key []byte) error {
						if string(key) != "id" {
							return d.Skip()
						}
						var err error
						orderEntity, err = optStr(d)
						return err
					})
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	if ev.Type == "" {
		return nil, errors.New("decode webhook: missing event")
	}

	ev.GatewayOrderID = orderEntity
	if ev.GatewayOrderID == "" {
		ev.GatewayOrderID = paymentOrd
	}
	return &ev, nil
}

// decodeEntity descends into {"entity":{...}} and calls fn for each field of
// the entity object.
func decodeEntity(d *jx.Decoder, fn func(d *jx.Decoder, key []byte) error) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "entity" {
			return d.Skip()
		}
		return d.ObjBytes(fn)
	})
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
