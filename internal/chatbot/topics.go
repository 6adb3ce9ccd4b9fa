package chatbot

import "strings"

// Topic is the closed set of categories a user utterance can fall into.
type Topic string

const (
	TopicAppointment Topic = "appointment"
	TopicHours       Topic = "hours"
	TopicLocation    Topic = "location"
	TopicServices    Topic = "services"
	TopicInsurance   Topic = "insurance"
	TopicCovid       Topic = "covid"
	TopicDoctors     Topic = "doctors"
	TopicEmergency   Topic = "emergency"
	TopicGreeting    Topic = "greeting"
	TopicThanks      Topic = "thanks"
	TopicFarewell    Topic = "farewell"
	TopicUnknown     Topic = "unknown"
)

// FallbackReply answers anything that matches no topic.
const FallbackReply = "I'm sorry, I don't have enough information to answer that. Could you provide more details?"

// GreetingText opens every new conversation.
const GreetingText = "Hello! I'm Doctor Uncle's AI assistant. How can I help you today?"

// topicRule pairs a keyword list with the replies for its topic.
type topicRule struct {
	Topic     Topic
	Keywords  []string // lower-case, matched as substrings
	FirstTime string
	FollowUp  string
}

// topicRules is evaluated top to bottom; the first rule with a matching
// keyword wins. Order matters: "book an appointment, are you open?" must
// stay an appointment question.
var topicRules = []topicRule{
	{
		Topic:     TopicAppointment,
		Keywords:  []string{"appointment", "book", "schedule"},
		FirstTime: "You can book an appointment by calling our front desk at (555) 123-4567 or by using the Book Appointment form on our website. Would you like me to walk you through the form?",
		FollowUp:  "To change an existing appointment, use your patient dashboard or call the front desk. Please give us at least 24 hours' notice for cancellations.",
	},
	{
		Topic:     TopicHours,
		Keywords:  []string{"hour", "open"},
		FirstTime: "Our clinic is open Monday to Friday from 8:00 AM to 6:00 PM, and Saturday from 9:00 AM to 2:00 PM. We are closed on Sundays and public holidays.",
		FollowUp:  "Outside regular hours you can reach our after-hours nurse line by phone or leave a request in the patient portal. For emergencies, please call 911.",
	},
	{
		Topic:     TopicLocation,
		Keywords:  []string{"location", "address", "where"},
		FirstTime: "We're located at 123 Health Avenue, Suite 200, Springfield. Free parking is available behind the building.",
		FollowUp:  "The clinic is a short walk from the Central Station bus stop and the entrance is wheelchair accessible. Directions are on our Contact page.",
	},
	{
		Topic:     TopicServices,
		Keywords:  []string{"service", "treat", "specialize"},
		FirstTime: "We offer primary care, pediatrics, women's health, chronic disease management, vaccinations and minor procedures. Is there a specific service you're interested in?",
		FollowUp:  "We also provide telehealth visits, routine lab work and annual physicals. Our Services page has details for each specialty.",
	},
	{
		Topic:     TopicInsurance,
		Keywords:  []string{"insurance"},
		FirstTime: "We accept most major insurance plans, including Blue Cross, Aetna, Cigna, UnitedHealthcare and Medicare. Please bring your insurance card to your visit.",
		FollowUp:  "If your plan isn't listed, our billing team can verify your coverage before the visit. We also offer self-pay rates.",
	},
	{
		Topic:     TopicCovid,
		Keywords:  []string{"covid", "vaccine", "vaccination"},
		FirstTime: "We offer COVID-19 testing and vaccinations, including boosters. Appointments are recommended, but walk-ins are accepted when availability allows.",
		FollowUp:  "Your vaccination record is available in the patient dashboard after your visit. If you have symptoms, please call ahead before coming in.",
	},
	{
		Topic:     TopicDoctors,
		Keywords:  []string{"doctor", "physician", "specialist"},
		FirstTime: "Our team includes board-certified physicians in family medicine, internal medicine and pediatrics. You can read their profiles on our Doctors page.",
		FollowUp:  "You can request a specific doctor when booking. New patients are matched with a physician based on availability and care needs.",
	},
	{
		Topic:     TopicEmergency,
		Keywords:  []string{"emergency"},
		FirstTime: "If this is a medical emergency, please call 911 or go to the nearest emergency room immediately.",
		FollowUp:  "Please don't wait for a chat reply in an emergency. Call 911 or go to the nearest emergency room right away.",
	},
	{
		Topic:     TopicGreeting,
		Keywords:  []string{"hi", "hello", "hey"},
		FirstTime: "Hello! How can I help you today? You can ask me about appointments, hours, our location, services, insurance or our doctors.",
		FollowUp:  "Hi again! What else would you like to know?",
	},
	{
		Topic:     TopicThanks,
		Keywords:  []string{"thank"},
		FirstTime: "You're welcome! Is there anything else I can help you with?",
		FollowUp:  "Happy to help! Let me know if anything else comes up.",
	},
	{
		Topic:     TopicFarewell,
		Keywords:  []string{"bye", "goodbye"},
		FirstTime: "Goodbye! Thank you for contacting Doctor Uncle. Have a healthy day!",
		FollowUp:  "Take care! We're here whenever you need us.",
	},
}

// Topics lists every classifiable topic in priority order, followed by
// TopicUnknown.
func Topics() []Topic {
	out := make([]Topic, 0, len(topicRules)+1)
	for _, r := range topicRules {
		out = append(out, r.Topic)
	}
	return append(out, TopicUnknown)
}

// ruleFor returns the rule whose keywords match text.
func ruleFor(text string) (topicRule, bool) {
	lower := strings.ToLower(text)
	for _, r := range topicRules {
		if containsAny(lower, r.Keywords) {
			return r, true
		}
	}
	return topicRule{}, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
