package parser

// BuildInvoicePrompt returns the extraction prompt for supplier invoices.
func BuildInvoicePrompt() string {
	return `You are an invoice data extraction assistant. Read the supplier invoice provided and return its data as a single JSON object following this schema:

{
  "numéro_facture": "12345",
  "date_facture": "2024-02-15",
  "date_echeance": "2024-03-15",
  "mode_reglement": "Virement",
  "client": {
    "nom": "Entreprise XYZ",
    "adresse": "123 Rue de Paris, 75001 Paris",
    "TVA_intracommunautaire": "FR123456789"
  },
  "banque": {
    "IBAN": "FR7612345678901234567890123",
    "BIC": "BNPAFRPP"
  },
  "montants": {
    "total_HT": "500",
    "TVA": "20%",
    "total_TVA": "100",
    "total_TTC": "600"
  },
  "produits": [
    {"nom": "Produit A", "quantité": 2, "prix_unitaire": 100}
  ]
}

INSTRUCTIONS:
- "client.nom" is the name of the company that issued the invoice.
- Extract every product or service line into "produits".
- Keep amounts exactly as printed; do not compute missing totals.
- Write dates as YYYY-MM-DD.
- Omit any key whose value does not appear on the invoice instead of inventing it.

Return ONLY the JSON object, with no markdown formatting and no explanation.`
}

// TextPart labels the raw invoice text sent after the prompt.
func TextPart(text string) string {
	return "Facture brute : " + text
}
