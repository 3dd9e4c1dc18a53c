package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cargoplan/internal/model"
	"cargoplan/internal/planner"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("vehicle_status", func(fl validator.FieldLevel) bool {
		return model.VehicleStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("shipment_status", func(fl validator.FieldLevel) bool {
		switch model.ShipmentStatus(fl.Field().String()) {
		case model.ShipmentInStock, model.ShipmentAssigned, model.ShipmentDelivered:
			return true
		}
		return false
	})
	return v
}

// checkStruct runs the validator and flattens field errors into one line.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

type coordsIn struct {
	Lat *float64 `json:"lat" validate:"required_with=Lng,omitempty,latitude"`
	Lng *float64 `json:"lng" validate:"required_with=Lat,omitempty,longitude"`
}

func (c coordsIn) toModel() *model.Coordinates {
	if c.Lat == nil || c.Lng == nil {
		return nil
	}
	return &model.Coordinates{Lat: *c.Lat, Lng: *c.Lng}
}

type shipmentIn struct {
	Customer string  `json:"customer" validate:"required,max=200"`
	Address  string  `json:"address" validate:"max=500"`
	Weight   float64 `json:"weight" validate:"gt=0"`
	Deadline string  `json:"deadline" validate:"required"`
	Status   string  `json:"status" validate:"omitempty,shipment_status"`
	coordsIn
}

// parseDeadline accepts a calendar date or an RFC 3339 timestamp.
func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline must be YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}

func (in shipmentIn) toModel() (model.Shipment, error) {
	if err := checkStruct(in); err != nil {
		return model.Shipment{}, err
	}
	dl, err := parseDeadline(in.Deadline)
	if err != nil {
		return model.Shipment{}, err
	}
	return model.Shipment{
		Customer: in.Customer,
		Address:  in.Address,
		Weight:   in.Weight,
		Deadline: dl,
		Status:   model.ShipmentStatus(in.Status),
		Dest:     in.coordsIn.toModel(),
	}, nil
}

type vehicleIn struct {
	Brand    string  `json:"brand" validate:"required,max=100"`
	Capacity float64 `json:"capacity" validate:"gt=0"`
	Status   string  `json:"status" validate:"omitempty,vehicle_status"`
}

func (in vehicleIn) toModel() (model.Vehicle, error) {
	if err := checkStruct(in); err != nil {
		return model.Vehicle{}, err
	}
	return model.Vehicle{Brand: in.Brand, Capacity: in.Capacity, Status: model.VehicleStatus(in.Status)}, nil
}

type depotIn struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
	coordsIn
}

// toModel also returns the coordinates when the body carried them; nil
// means the address should be geocoded.
func (in depotIn) toModel() (model.Depot, *model.Coordinates, error) {
	if err := checkStruct(in); err != nil {
		return model.Depot{}, nil, err
	}
	return model.Depot{Name: in.Name, Address: in.Address}, in.coordsIn.toModel(), nil
}

// routeOptionsIn is the optimize request body. Every field is optional.
type routeOptionsIn struct {
	InitialTemperature      float64 `json:"initialTemperature" validate:"gte=0"`
	CoolingRate             float64 `json:"coolingRate" validate:"omitempty,gt=0,lt=1"`
	MinTemperature          float64 `json:"minTemperature" validate:"gte=0"`
	MaxIterations           int     `json:"maxIterations" validate:"gte=0,lte=10000000"`
	UseNearestNeighborStart *bool   `json:"useNearestNeighborStart"`
	Seed                    *int64  `json:"seed"`
	TwoOptPasses            int     `json:"twoOptPasses" validate:"gte=0,lte=50"`
}

func (in routeOptionsIn) toOptions() (planner.RouteOptions, error) {
	if err := checkStruct(in); err != nil {
		return planner.RouteOptions{}, err
	}
	if in.InitialTemperature > 0 && in.MinTemperature >= in.InitialTemperature {
		return planner.RouteOptions{}, errors.New("minTemperature must be below initialTemperature")
	}
	return planner.RouteOptions{
		InitialTemp:          in.InitialTemperature,
		CoolingRate:          in.CoolingRate,
		MinTemp:              in.MinTemperature,
		MaxIterations:        in.MaxIterations,
		NearestNeighborStart: in.UseNearestNeighborStart,
		Seed:                 in.Seed,
		TwoOptPasses:         in.TwoOptPasses,
	}, nil
}
