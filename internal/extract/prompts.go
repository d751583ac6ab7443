package extract

// geminiPrompt instructs the model to classify a financial email and return a
// STRICT JSON object. The shape mirrors what geminiExtraction unmarshals.
const geminiPrompt = `You are a financial email parser. Analyze the email below and extract transaction and subscription details.

Output STRICT JSON only (no comments, no trailing commas, no extra text).
Output a single JSON object with these fields:

- "isFinancial": boolean, true only if the email describes an actual money movement or a subscription charge
- "transaction": object or null, with fields:
  - "amount": number (always positive)
  - "currency": string, ISO code such as "INR" or "USD"
  - "date": string, ISO format "YYYY-MM-DD", or null if the email does not state one
  - "description": string, short human-readable summary
  - "merchant": string or null
  - "category": string (e.g. "Food", "Shopping", "Transport", "Salary", "Refund", "Other")
  - "type": string, "income" for money received, "expense" for money spent
- "subscription": object or null, with fields:
  - "name": string, the service name
  - "amount": number
  - "currency": string
  - "billingCycle": string, one of "monthly", "yearly", "weekly", "quarterly"
  - "category": string

Rules:
- Promotional emails, OTPs, statements without a specific transaction: set "isFinancial" to false and both objects to null.
- A refund or reversal is "income".
- Only set "subscription" for recurring services (streaming, SaaS, memberships), not one-off purchases.
- Return ONLY valid raw JSON.
- Do NOT wrap the response in code fences.
- Do NOT use ` + "```json" + ` or any Markdown.
- Output must begin with "{" and end with "}".

Email:
`
