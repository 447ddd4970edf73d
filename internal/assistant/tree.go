package assistant

// defaultTree returns the storefront support tree. Every menu and info node
// carries an option path back toward the welcome node so no branch dead-ends.
func defaultTree() map[string]Node {
	nodes := []Node{
		{
			Key:   KeyRoot,
			Kind:  KindMenu,
			Title: "Welcome to CDW support",
			Body:  "Hi! I am the CDW shop assistant. Pick a topic and I will do my best to help.",
			Options: []Option{
				{Key: "products", Label: "Products"},
				{Key: "orders", Label: "Orders"},
				{Key: "shipping", Label: "Shipping"},
				{Key: "returns", Label: "Returns & refunds"},
				{Key: "payment", Label: "Payment"},
				{Key: KeyTransferAgent, Label: "Talk to a human agent"},
			},
		},
		{
			Key:   "products",
			Kind:  KindMenu,
			Title: "Products",
			Body:  "What would you like to know about our products?",
			Options: []Option{
				{Key: "products_availability", Label: "Stock & availability"},
				{Key: "products_sizing", Label: "Sizing guide"},
				{Key: "products_warranty", Label: "Warranty"},
				{Key: "products_discounts", Label: "Discounts & promotions"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "products_availability",
			Kind:  KindInfo,
			Title: "Stock & availability",
			Body:  "Product pages show live stock. Out-of-stock items can be added to your wishlist and you will be emailed when they return.",
			Options: []Option{
				{Key: "products", Label: "Back to products"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "products_sizing",
			Kind:  KindInfo,
			Title: "Sizing guide",
			Body:  "Each product page has a size chart under the Details tab. If you are between sizes we recommend sizing up.",
			Options: []Option{
				{Key: "products", Label: "Back to products"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "products_warranty",
			Kind:  KindInfo,
			Title: "Warranty",
			Body:  "All items carry a 12-month manufacturer warranty. Keep your order number; it doubles as the warranty reference.",
			Options: []Option{
				{Key: "products", Label: "Back to products"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "products_discounts",
			Kind:  KindInfo,
			Title: "Discounts & promotions",
			Body:  "Loyalty points are applied at checkout. Promotion codes go in the voucher field on the payment page and do not stack.",
			Options: []Option{
				{Key: "products", Label: "Back to products"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "orders",
			Kind:  KindMenu,
			Title: "Orders",
			Body:  "Questions about an order?",
			Options: []Option{
				{Key: "orders_status", Label: "Where is my order?"},
				{Key: "orders_change", Label: "Change or cancel an order"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "orders_status",
			Kind:  KindInfo,
			Title: "Where is my order?",
			Body:  "Open My Account > Orders to see the current status and tracking number of every order.",
			Options: []Option{
				{Key: "orders", Label: "Back to orders"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "orders_change",
			Kind:  KindInfo,
			Title: "Change or cancel an order",
			Body:  "Orders can be changed or cancelled until they are handed to the carrier. After that, use the returns flow instead.",
			Options: []Option{
				{Key: "orders", Label: "Back to orders"},
				{Key: KeyTransferAgent, Label: "Talk to a human agent"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "shipping",
			Kind:  KindInfo,
			Title: "Shipping",
			Body:  "Standard delivery takes 3-5 business days, express 1-2. Shipping is free for orders above 500k VND.",
			Options: []Option{
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "returns",
			Kind:  KindInfo,
			Title: "Returns & refunds",
			Body:  "You have 30 days to return unused items. Refunds are issued to the original payment method within 7 days of the return arriving.",
			Options: []Option{
				{Key: KeyTransferAgent, Label: "Talk to a human agent"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
		{
			Key:   "payment",
			Kind:  KindInfo,
			Title: "Payment",
			Body:  "We accept cards, bank transfer, VNPay and cash on delivery. Payment issues at checkout are usually fixed by retrying in a fresh browser session.",
			Options: []Option{
				{Key: KeyTransferAgent, Label: "Talk to a human agent"},
				{Key: KeyBackMain, Label: "Back to main menu"},
			},
		},
	}

	table := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		table[n.Key] = n
	}
	return table
}
