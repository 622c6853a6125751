package proactive

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mirelabs/companion/internal/models"
)

var preparationMessages = []string{
	"🕐 Heads up! Your %s is coming up at %s. Take a moment to prepare!",
	"⏰ %s starts at %s. Getting ready?",
	"📅 Just a reminder - %s at %s. Make sure you're all set!",
	"🎯 %s is almost here (%s). Deep breath, you got this!",
}

var completionMessages = []string{
	"✨ Your %s is done! How did it go?",
	"🎉 %s wrapped up! Anything you'd like to talk about?",
	"👏 All done with %s. How are you feeling?",
	"📊 %s is complete! Want to debrief?",
}

var followupMessages = []string{
	"Hey! 👋 How did your %s go?",
	"Welcome back! 😊 Tell me about your %s.",
	"How are you doing after %s?",
	"That %s you mentioned - how did it turn out?",
}

var greetingMessages = map[models.SessionType][]string{
	models.SessionMorningGreeting: {
		"Good morning, %s! ☀️ How are you starting your day?",
		"Morning, %s! 🌅 Hope you slept well. What's on your agenda today?",
		"Hey %s! 🌞 Ready to tackle the day?",
	},
	models.SessionAfternoonGreeting: {
		"Hey %s! 👋 How's your afternoon going?",
		"Good afternoon, %s! ☀️ Getting through the day okay?",
		"Afternoon, %s! 🌤️ Need a break or want to chat?",
	},
	models.SessionEveningGreeting: {
		"Good evening, %s! 🌆 How was your day?",
		"Hey %s! 🌙 Winding down for the evening?",
		"Evening, %s! ✨ Tell me about your day.",
	},
	models.SessionNightGreeting: {
		"Hey %s! 🌙 Still up?",
		"Late night, %s? 🌃 What's keeping you awake?",
		"Night owl, huh, %s? 🦉 What are you up to?",
	},
}

func preparationMessage(eventName, timeStr string) string {
	return fmt.Sprintf(pick(preparationMessages), eventName, timeStr)
}

func completionMessage(eventName string) string {
	return fmt.Sprintf(pick(completionMessages), eventName)
}

func followupMessage(eventName string) string {
	return fmt.Sprintf(pick(followupMessages), eventName)
}

func greetingMessage(greetingType models.SessionType, name string) string {
	msgs, ok := greetingMessages[greetingType]
	if !ok {
		msgs = greetingMessages[models.SessionMorningGreeting]
	}
	return fmt.Sprintf(pick(msgs), name)
}

func pick(msgs []string) string {
	return msgs[rand.Intn(len(msgs))]
}

// formatLocalTime renders an instant as a clock time in the user's
// timezone for message templates.
func formatLocalTime(t time.Time, user *models.User) string {
	return t.In(user.Location()).Format("3:04 PM")
}

// greetingTypeForHour buckets a local hour into the day-part greeting.
func greetingTypeForHour(hour int) models.SessionType {
	switch {
	case hour >= 6 && hour < 12:
		return models.SessionMorningGreeting
	case hour >= 12 && hour < 17:
		return models.SessionAfternoonGreeting
	case hour >= 17 && hour < 22:
		return models.SessionEveningGreeting
	default:
		return models.SessionNightGreeting
	}
}
