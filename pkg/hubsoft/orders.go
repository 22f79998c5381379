package hubsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/model"
)

const ordersPath = "integracao/ordem_servico/todos"

// DateField selects which timestamp the date range filters on.
type DateField string

const (
	DateCreated        DateField = "data_cadastro"
	DateScheduledStart DateField = "data_inicio_programado"
	DateStarted        DateField = "data_inicio_executado"
	DateFinished       DateField = "data_termino_executado"
)

// OrdersQuery filters a FetchOrders call. From and To are inclusive dates.
type OrdersQuery struct {
	From       time.Time
	To         time.Time
	DateField  DateField
	Status     string
	Technician string
	OrderType  string
	// RoleHint is copied onto every record; the API does not carry it.
	RoleHint string
	// IncludeOpen keeps orders without a finish timestamp.
	IncludeOpen bool
}

func (q OrdersQuery) params(page, perPage int) url.Values {
	v := url.Values{}
	v.Set("pagina", strconv.Itoa(page))
	v.Set("itens_por_pagina", strconv.Itoa(perPage))
	v.Set("data_inicio", q.From.Format(time.DateOnly))
	v.Set("data_fim", q.To.Format(time.DateOnly))
	field := q.DateField
	if field == "" {
		field = DateFinished
	}
	v.Set("tipo_data", string(field))
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Technician != "" {
		v.Set("tecnico", q.Technician)
	}
	if q.OrderType != "" {
		v.Set("tipo_ordem_servico", q.OrderType)
	}
	return v
}

// text accepts JSON strings, numbers and null.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	default:
		*t = text(b)
	}
	return nil
}

type address struct {
	State text `json:"estado"`
	City  text `json:"cidade"`
}

type service struct {
	Status text `json:"servico_status"`
}

type order struct {
	ID          text    `json:"id_ordem_servico"`
	ClientCode  text    `json:"codigo_cliente"`
	OrderNumber text    `json:"numero_ordem_servico"`
	Number      text    `json:"numero"`
	ClosedBy    text    `json:"usuario_fechamento"`
	FinishedAt  text    `json:"data_termino_executado"`
	OrderType   text    `json:"tipo_ordem_servico"`
	Type        text    `json:"tipo"`
	Address     address `json:"dados_endereco_instalacao"`
	Service     service `json:"dados_servico"`
}

type ordersPage struct {
	Orders     []order `json:"ordens_servico"`
	OrdersAlt  []order `json:"ordens"`
	OrdersData []order `json:"data"`
}

func (p ordersPage) items() []order {
	switch {
	case len(p.Orders) > 0:
		return p.Orders
	case len(p.OrdersAlt) > 0:
		return p.OrdersAlt
	}
	return p.OrdersData
}

var timeLayouts = []string{
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	time.DateOnly,
}

// ParseTime reads the timestamp formats HubSoft emits. Values without a zone
// are taken in loc.
func ParseTime(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, eris.Errorf("hubsoft: unrecognized timestamp %q", s)
}

func (o order) key() string {
	id := string(o.ID)
	if id == "" {
		id = o.number()
	}
	return string(o.ClientCode) + "|" + id
}

func (o order) number() string {
	if o.OrderNumber != "" {
		return string(o.OrderNumber)
	}
	return string(o.Number)
}

func (o order) record(account, role string, closedAt *time.Time) model.OperationalRecord {
	orderType := string(o.OrderType)
	if orderType == "" {
		orderType = string(o.Type)
	}
	state := strings.ToUpper(strings.TrimSpace(string(o.Address.State)))
	city := strings.ToUpper(strings.TrimSpace(string(o.Address.City)))
	region := strings.TrimSpace(state + " " + city)
	return model.OperationalRecord{
		Account:       account,
		ClientCode:    string(o.ClientCode),
		OrderNumber:   o.number(),
		CloserName:    strings.TrimSpace(string(o.ClosedBy)),
		ClosedAt:      closedAt,
		RoleHint:      role,
		Region:        region,
		State:         state,
		City:          city,
		OrderType:     orderType,
		ServiceStatus: strings.ToUpper(strings.TrimSpace(string(o.Service.Status))),
	}
}

// FetchOrders pages until an empty page, a page with nothing new, or the
// page limit. Orders without a finish timestamp are dropped unless
// IncludeOpen is set.
func (c *httpClient) FetchOrders(ctx context.Context, q OrdersQuery) ([]model.OperationalRecord, error) {
	if q.To.Before(q.From) {
		return nil, eris.New("hubsoft: query ends before it starts")
	}
	log := zap.L().With(zap.String("account", c.creds.Account))
	loc := q.From.Location()

	seen := make(map[string]bool)
	var out []model.OperationalRecord
	var skipped int
	page := 1
	for ; page <= c.maxPages; page++ {
		body, err := c.get(ctx, ordersPath, q.params(page, c.itemsPerPage))
		if err != nil {
			return nil, eris.Wrapf(err, "hubsoft: fetch page %d", page)
		}
		var p ordersPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, eris.Wrapf(err, "hubsoft: unmarshal page %d", page)
		}
		items := p.items()
		if len(items) == 0 {
			break
		}

		fresh := 0
		for _, o := range items {
			k := o.key()
			if seen[k] {
				continue
			}
			seen[k] = true
			fresh++

			closedAt, err := ParseTime(string(o.FinishedAt), loc)
			if err != nil {
				log.Warn("hubsoft: bad finish timestamp", zap.String("order", o.number()), zap.Error(err))
			}
			if closedAt == nil && !q.IncludeOpen {
				skipped++
				continue
			}
			out = append(out, o.record(c.creds.Account, q.RoleHint, closedAt))
		}
		if fresh == 0 {
			log.Warn("hubsoft: page repeated previous results, stopping", zap.Int("page", page))
			break
		}
	}
	if page > c.maxPages {
		log.Warn("hubsoft: page limit reached", zap.Int("max_pages", c.maxPages))
	}

	log.Info("hubsoft: orders fetched",
		zap.Int("records", len(out)),
		zap.Int("skipped_open", skipped),
		zap.Int("last_page", page),
	)
	return out, nil
}
