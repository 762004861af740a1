package service

import (
	"fmt"

	"github.com/ecofood/foodshare/internal/model"
)

func postedAlertTemplate(name, donor string, listing *model.Listing, listingURL, appName string) (string, string) {
	subject := fmt.Sprintf("New donation near you: %s", listing.Name)
	body := fmt.Sprintf(`Hi %s,

%s, near you, just posted food that needs collecting:

%s (%s)
Quantity: %s
Best before: %s

Claim it before another organization does:
%s

Best,
The %s Team`, name, donor, listing.Name, listing.Category, listing.Quantity, formatTime(listing.ExpiresAt), listingURL, appName)

	return subject, body
}

func claimedAlertTemplate(name, organization string, listing *model.Listing, appName string) (string, string) {
	subject := fmt.Sprintf("%s claimed your donation", organization)
	body := fmt.Sprintf(`Hi %s,

%s claimed %s and is on the way.

When they arrive they will show you a 6-digit pickup code. Enter it in %s to confirm the handover.

Thank you for donating!

Best,
The %s Team`, name, organization, listing.Name, appName, appName)

	return subject, body
}

func pickupCompletedTemplate(name, donor string, listing *model.Listing, appName string) (string, string) {
	subject := fmt.Sprintf("Pickup confirmed: %s", listing.Name)
	body := fmt.Sprintf(`Hi %s,

%s confirmed your pickup of %s (%s). The donation is now complete.

Thanks for getting good food to people who need it.

Best,
The %s Team`, name, donor, listing.Name, listing.Quantity, appName)

	return subject, body
}
