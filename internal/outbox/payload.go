package outbox

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rodela-order-api/internal/domain/customer"
)

// CouponRedeem is the coupon.redeem payload.
type CouponRedeem struct {
	Code  string
	Phone string
}

func encodeCouponRedeem(p CouponRedeem) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("phone")
	e.Str(p.Phone)
	e.ObjEnd()
	return e.Bytes()
}

func DecodeCouponRedeem(data []byte) (CouponRedeem, error) {
	var p CouponRedeem
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			p.Code, err = d.Str()
		case "phone":
			p.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return CouponRedeem{}, errors.Wrap(err, "decode coupon.redeem payload")
	}
	return p, nil
}

func encodeOrderSnapshot(s customer.OrderSnapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("phone")
	e.Str(s.Phone)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("address")
	e.Str(s.Address)
	e.FieldStart("amount")
	e.Str(s.Amount.String())
	e.FieldStart("date")
	e.Str(s.Date.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func DecodeOrderSnapshot(data []byte) (customer.OrderSnapshot, error) {
	var s customer.OrderSnapshot
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			s.Name = v
			return err
		case "phone":
			v, err := d.Str()
			s.Phone = v
			return err
		case "email":
			v, err := d.Str()
			s.Email = v
			return err
		case "address":
			v, err := d.Str()
			s.Address = v
			return err
		case "amount":
			v, err := d.Str()
			if err != nil {
				return err
			}
			s.Amount, err = decimal.NewFromString(v)
			return err
		case "date":
			v, err := d.Str()
			if err != nil {
				return err
			}
			s.Date, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return customer.OrderSnapshot{}, errors.Wrap(err, "decode customer.record payload")
	}
	return s, nil
}
