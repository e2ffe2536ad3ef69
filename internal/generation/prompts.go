package generation

import "fmt"

// Prompt templates for event enrichment. Each derived field gets its own
// generation call with its own instruction; summaries must always be produced
// from the event's full post list.

const eventNamePrompt = `You are labelling a cluster of social media posts about a municipality.
Produce a short name for the event these posts describe, at most 10 words.
Reply with the name only, no quotes and no explanation.

POSTS:
%s`

const eventSmallSummaryPrompt = `You are summarising a cluster of social media posts about a municipality.
Write a summary of roughly 50 words covering what residents are discussing.
Reply with the summary only.

POSTS:
%s`

const eventBigSummaryPrompt = `You are summarising a cluster of social media posts about a municipality.
Write a broad narrative of roughly 50 words: what is happening, who is involved,
and how residents feel about it. Reply with the narrative only.

POSTS:
%s`

const eventCaseDescriptionPrompt = `You are describing the subject of a cluster of social media posts about a municipality.
Write 2-3 neutral sentences describing only the subject matter itself.
Do not mention dates, times, places, platforms, or individual posts.
Reply with the description only.

POSTS:
%s`

const eventKeywordsPrompt = `You are extracting keywords from a cluster of social media posts about a municipality.
List 15 keywords that capture the subject of these posts.
Reply with a single comma-separated list, no numbering and no explanation.

POSTS:
%s`

// EventNamePrompt fills the event-name template with post content.
func EventNamePrompt(posts string) string {
	return fmt.Sprintf(eventNamePrompt, posts)
}

// EventSmallSummaryPrompt fills the small-summary template.
func EventSmallSummaryPrompt(posts string) string {
	return fmt.Sprintf(eventSmallSummaryPrompt, posts)
}

// EventBigSummaryPrompt fills the big-summary template.
func EventBigSummaryPrompt(posts string) string {
	return fmt.Sprintf(eventBigSummaryPrompt, posts)
}

// EventCaseDescriptionPrompt fills the case-description template. The result
// is the text preferred for post-to-event matching, so the instruction
// excludes posting-specific detail.
func EventCaseDescriptionPrompt(posts string) string {
	return fmt.Sprintf(eventCaseDescriptionPrompt, posts)
}

// EventKeywordsPrompt fills the keywords template.
func EventKeywordsPrompt(posts string) string {
	return fmt.Sprintf(eventKeywordsPrompt, posts)
}

const sentimentPrompt = `SYSTEM INSTRUCTION:
You are a sentiment analysis service for Dutch-language news articles.

TASK:
Analyze the article below and output its sentiment as a number.

RULES:
1. Base sentiment purely on the article tone, not personal interpretation.
2. Use these guidelines:
   - 0-20 -> very negative
   - 21-40 -> negative
   - 41-59 -> neutral
   - 60-80 -> positive
   - 81-100 -> very positive
3. Only produce the sentiment score as a number.

INPUT:
%s`

// SentimentPrompt fills the sentiment template with a block of post text.
func SentimentPrompt(content string) string {
	return fmt.Sprintf(sentimentPrompt, content)
}

const subjectDescriptionPrompt = `Read the social media post below and state in one short sentence what it is about.
Describe the subject only, without mentioning the platform or the author.
Reply with the sentence only.

POST:
%s`

// SubjectDescriptionPrompt fills the subject-description template.
func SubjectDescriptionPrompt(content string) string {
	return fmt.Sprintf(subjectDescriptionPrompt, content)
}

const findTopicPrompt = `You are categorising a social media post about a municipality.
Pick the single best matching topic from the list below.
Reply with the topic name only, exactly as written in the list.

POST:
%s

TOPICS:
%s`

// FindTopicPrompt fills the topic-resolution template with the post
// description and a formatted topic list.
func FindTopicPrompt(postDescription, topics string) string {
	return fmt.Sprintf(findTopicPrompt, postDescription, topics)
}
