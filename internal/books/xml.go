package books

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

const dateLayout = "2006-01-02"

type xmlResponse struct {
	XMLName  xml.Name           `xml:"Response"`
	Contacts []xmlContact       `xml:"Contacts>Contact"`
	Items    []xmlItemResult    `xml:"Items>Item"`
	Invoices []xmlInvoiceResult `xml:"Invoices>Invoice"`
}

type xmlContact struct {
	ContactID    string           `xml:"ContactID"`
	Name         string           `xml:"Name"`
	FirstName    string           `xml:"FirstName"`
	LastName     string           `xml:"LastName"`
	PaymentTerms *xmlPaymentTerms `xml:"PaymentTerms"`
}

type xmlPaymentTerms struct {
	Bills *xmlTerms `xml:"Bills"`
	Sales *xmlTerms `xml:"Sales"`
}

type xmlTerms struct {
	Day  int    `xml:"Day"`
	Type string `xml:"Type"`
}

type xmlItemResult struct {
	Code        string `xml:"Code"`
	Description string `xml:"Description"`
}

type xmlInvoiceResult struct {
	InvoiceID string   `xml:"InvoiceID"`
	Warnings  []string `xml:"Warnings>Warning>Message"`
}

func (ct xmlContact) ref() ContactRef {
	return ContactRef{
		ID:       ct.ContactID,
		Name:     ct.Name,
		FullName: strings.TrimSpace(ct.FirstName + " " + ct.LastName),
	}
}

func (ct xmlContact) detail() *ContactDetail {
	d := &ContactDetail{
		ID:       ct.ContactID,
		Name:     ct.Name,
		FullName: strings.TrimSpace(ct.FirstName + " " + ct.LastName),
	}
	if ct.PaymentTerms != nil {
		d.BillTerms = ct.PaymentTerms.Bills.terms()
		d.InvoiceTerms = ct.PaymentTerms.Sales.terms()
	}
	return d
}

func (t *xmlTerms) terms() *catalog.PaymentTerms {
	if t == nil {
		return nil
	}
	return &catalog.PaymentTerms{Day: t.Day, Policy: catalog.DueDatePolicy(t.Type)}
}

func parseResponse(body []byte) (*xmlResponse, error) {
	var resp xmlResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, &Error{StatusCode: http.StatusOK, Message: "malformed response: " + err.Error()}
	}
	return &resp, nil
}

func parseContactsResponse(body []byte) ([]xmlContact, error) {
	resp, err := parseResponse(body)
	if err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

func parseItemDescription(body []byte) (string, error) {
	resp, err := parseResponse(body)
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", &Error{StatusCode: http.StatusOK, Message: "response did not contain item details"}
	}
	return resp.Items[0].Description, nil
}

func parseInvoiceResponse(body []byte) (string, []string, error) {
	resp, err := parseResponse(body)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Invoices) == 0 {
		return "", nil, &Error{StatusCode: http.StatusOK, Message: "response did not contain invoice details"}
	}
	inv := resp.Invoices[0]
	if inv.InvoiceID == "" {
		return "", nil, &Error{StatusCode: http.StatusOK, Message: "no invoice ID was returned"}
	}
	return inv.InvoiceID, inv.Warnings, nil
}

type xmlItems struct {
	XMLName xml.Name  `xml:"Items"`
	Items   []xmlItem `xml:"Item"`
}

type xmlItem struct {
	Code        string `xml:"Code"`
	Name        string `xml:"Name"`
	Description string `xml:"Description"`
}

// ItemDisplayName is how products are labelled upstream.
func ItemDisplayName(p catalog.Product) string {
	return fmt.Sprintf("%s (%s%% ABV)", p.Name, p.ABV.StringFixed(1))
}

func marshalItems(products []catalog.Product) ([]byte, error) {
	payload := xmlItems{Items: make([]xmlItem, 0, len(products))}
	for _, p := range products {
		display := ItemDisplayName(p)
		payload.Items = append(payload.Items, xmlItem{
			Code:        p.Code,
			Name:        display,
			Description: display,
		})
	}
	return xml.Marshal(payload)
}

type xmlInvoices struct {
	XMLName xml.Name   `xml:"Invoices"`
	Invoice xmlInvoice `xml:"Invoice"`
}

type xmlContactID struct {
	ContactID string `xml:"ContactID"`
}

type xmlInvoice struct {
	Type            string        `xml:"Type"`
	Contact         xmlContactID  `xml:"Contact"`
	LineAmountTypes string        `xml:"LineAmountTypes"`
	Date            string        `xml:"Date"`
	DueDate         string        `xml:"DueDate,omitempty"`
	InvoiceNumber   string        `xml:"InvoiceNumber,omitempty"`
	Reference       string        `xml:"Reference,omitempty"`
	LineItems       []xmlLineItem `xml:"LineItems>LineItem"`
}

type xmlLineItem struct {
	Description string `xml:"Description"`
	ItemCode    string `xml:"ItemCode"`
	Quantity    string `xml:"Quantity"`
	AccountCode string `xml:"AccountCode"`
	UnitAmount  string `xml:"UnitAmount"`
}

func marshalInvoice(inv Invoice) ([]byte, error) {
	invoiceType := "ACCREC"
	if inv.Bill {
		invoiceType = "ACCPAY"
	}
	payload := xmlInvoices{Invoice: xmlInvoice{
		Type:            invoiceType,
		Contact:         xmlContactID{ContactID: inv.ContactID},
		LineAmountTypes: "Exclusive",
		Date:            inv.Date.Format(dateLayout),
	}}
	if inv.DueDate != nil {
		payload.Invoice.DueDate = inv.DueDate.Format(dateLayout)
	}
	if inv.Reference != "" {
		// Bills carry the reference as the supplier's invoice number.
		if inv.Bill {
			payload.Invoice.InvoiceNumber = inv.Reference
		} else {
			payload.Invoice.Reference = inv.Reference
		}
	}
	for _, line := range inv.Lines {
		payload.Invoice.LineItems = append(payload.Invoice.LineItems, xmlLineItem{
			Description: line.Description,
			ItemCode:    line.ItemCode,
			Quantity:    line.Quantity.String(),
			AccountCode: line.AccountCode,
			UnitAmount:  line.UnitAmount.String(),
		})
	}
	return xml.Marshal(payload)
}

// rejectionMessage pulls every <Message> element out of a 400 body, however
// nested the validation errors are.
func rejectionMessage(body []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	var messages []string
	var inMessage bool
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inMessage = t.Name.Local == "Message"
		case xml.CharData:
			if inMessage {
				if text := strings.TrimSpace(string(t)); text != "" {
					messages = append(messages, text)
				}
			}
		case xml.EndElement:
			inMessage = false
		}
	}
	if len(messages) == 0 {
		return strings.TrimSpace(string(body))
	}
	return "rejected: " + strings.Join(messages, ", ")
}
