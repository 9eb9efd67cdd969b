package invoice

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leafPenalty is added to a synonym's priority when it only matched the last
// segment of a nested key.
const leafPenalty = 10

type synonym struct {
	field    Field
	priority int
}

// synonyms maps normalized keys to canonical fields. Dotted keys only match the
// full path of a nested value; plain keys match top-level keys, reference
// headers and the leaf of nested keys. Lower priority wins.
var synonyms = map[string]synonym{
	"numero_facture":    {FieldInvoiceNumber, 0},
	"numero_de_facture": {FieldInvoiceNumber, 0},
	"n_facture":         {FieldInvoiceNumber, 0},
	"no_facture":        {FieldInvoiceNumber, 0},
	"facture_n":         {FieldInvoiceNumber, 0},
	"num_facture":       {FieldInvoiceNumber, 0},
	"invoice_number":    {FieldInvoiceNumber, 0},
	"invoice_no":        {FieldInvoiceNumber, 0},
	"invoice_id":        {FieldInvoiceNumber, 0},
	"facture":           {FieldInvoiceNumber, 1},
	"invoice":           {FieldInvoiceNumber, 1},

	"date_facture":     {FieldInvoiceDate, 0},
	"date_de_facture":  {FieldInvoiceDate, 0},
	"date_facturation": {FieldInvoiceDate, 0},
	"invoice_date":     {FieldInvoiceDate, 0},
	"date_emission":    {FieldInvoiceDate, 0},
	"issue_date":       {FieldInvoiceDate, 0},
	"date":             {FieldInvoiceDate, 1},

	"date_echeance":   {FieldDueDate, 0},
	"date_d_echeance": {FieldDueDate, 0},
	"echeance":        {FieldDueDate, 0},
	"due_date":        {FieldDueDate, 0},
	"payment_due":     {FieldDueDate, 0},

	"mode_reglement":    {FieldPaymentMode, 0},
	"mode_de_reglement": {FieldPaymentMode, 0},
	"mode_paiement":     {FieldPaymentMode, 0},
	"mode_de_paiement":  {FieldPaymentMode, 0},
	"payment_mode":      {FieldPaymentMode, 0},
	"payment_method":    {FieldPaymentMode, 0},
	"reglement":         {FieldPaymentMode, 1},

	"nom_fournisseur": {FieldSupplierName, 0},
	"fournisseur_nom": {FieldSupplierName, 0},
	"raison_sociale":  {FieldSupplierName, 0},
	"supplier_name":   {FieldSupplierName, 0},
	"vendor_name":     {FieldSupplierName, 0},
	"seller_name":     {FieldSupplierName, 0},
	"fournisseur.nom": {FieldSupplierName, 0},
	"supplier.name":   {FieldSupplierName, 0},
	"seller.name":     {FieldSupplierName, 0},
	"vendor.name":     {FieldSupplierName, 0},
	"nom_client":      {FieldSupplierName, 1},
	"client_nom":      {FieldSupplierName, 1},
	"client.nom":      {FieldSupplierName, 1},
	"client.name":     {FieldSupplierName, 1},
	"fournisseur":     {FieldSupplierName, 1},
	"supplier":        {FieldSupplierName, 1},
	"client":          {FieldSupplierName, 1},

	"adresse":             {FieldAddress, 0},
	"address":             {FieldAddress, 0},
	"adresse_fournisseur": {FieldAddress, 0},
	"adresse_client":      {FieldAddress, 0},
	"client_adresse":      {FieldAddress, 0},
	"client.adresse":      {FieldAddress, 0},
	"client.address":      {FieldAddress, 0},
	"fournisseur.adresse": {FieldAddress, 0},
	"supplier.address":    {FieldAddress, 0},

	"tva_intracommunautaire": {FieldTaxID, 0},
	"numero_tva":             {FieldTaxID, 0},
	"n_tva":                  {FieldTaxID, 0},
	"tva_intra":              {FieldTaxID, 0},
	"vat_number":             {FieldTaxID, 0},
	"vat_id":                 {FieldTaxID, 0},
	"tax_id":                 {FieldTaxID, 0},
	"siret":                  {FieldTaxID, 1},

	"iban":  {FieldIBAN, 0},
	"bic":   {FieldBIC, 0},
	"swift": {FieldBIC, 0},

	"total_ht":   {FieldNetTotal, 0},
	"montant_ht": {FieldNetTotal, 0},
	"net_total":  {FieldNetTotal, 0},
	"total_net":  {FieldNetTotal, 0},
	"subtotal":   {FieldNetTotal, 0},
	"sous_total": {FieldNetTotal, 0},
	"net_amount": {FieldNetTotal, 0},

	"taux_tva":    {FieldTaxRate, 0},
	"taux_de_tva": {FieldTaxRate, 0},
	"tax_rate":    {FieldTaxRate, 0},
	"vat_rate":    {FieldTaxRate, 0},
	"tva":         {FieldTaxRate, 1},

	"total_tva":   {FieldTaxAmount, 0},
	"montant_tva": {FieldTaxAmount, 0},
	"tax_amount":  {FieldTaxAmount, 0},
	"vat_amount":  {FieldTaxAmount, 0},
	"total_tax":   {FieldTaxAmount, 0},

	"montant_total": {FieldGrossTotal, 0},
	"total_ttc":     {FieldGrossTotal, 0},
	"montant_ttc":   {FieldGrossTotal, 0},
	"net_a_payer":   {FieldGrossTotal, 0},
	"gross_total":   {FieldGrossTotal, 0},
	"total_amount":  {FieldGrossTotal, 0},
	"amount_due":    {FieldGrossTotal, 0},
	"grand_total":   {FieldGrossTotal, 0},
	"total":         {FieldGrossTotal, 1},
	"montant":       {FieldGrossTotal, 1},
	"amount":        {FieldGrossTotal, 1},

	"produits":    {FieldLineItems, 0},
	"line_items":  {FieldLineItems, 0},
	"items":       {FieldLineItems, 0},
	"prestations": {FieldLineItems, 0},
	"articles":    {FieldLineItems, 0},
	"lignes":      {FieldLineItems, 0},
	"products":    {FieldLineItems, 0},
}

type itemField int

const (
	itemName itemField = iota
	itemQuantity
	itemUnitPrice
)

var itemSynonyms = map[string]itemField{
	"nom":              itemName,
	"name":             itemName,
	"designation":      itemName,
	"description":      itemName,
	"libelle":          itemName,
	"materiel":         itemName,
	"produit":          itemName,
	"article":          itemName,
	"quantite":         itemQuantity,
	"qte":              itemQuantity,
	"quantity":         itemQuantity,
	"qty":              itemQuantity,
	"prix_unitaire":    itemUnitPrice,
	"prix_unitaire_ht": itemUnitPrice,
	"unit_price":       itemUnitPrice,
	"pu":               itemUnitPrice,
	"prix":             itemUnitPrice,
	"price":            itemUnitPrice,
}

// NormalizeKey folds accents, lower-cases and replaces every run of
// non-alphanumeric characters with a single underscore.
func NormalizeKey(key string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), key)
	if err != nil {
		folded = key
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ParseField resolves a canonical field name.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if _, ok := KindOf(f); !ok {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}
