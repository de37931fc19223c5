package vision

import (
	"fmt"
	"strings"
)

// System prompts are identical across gemstones, so they are sent with a
// cache breakpoint and stay warm across a batch sweep.
const (
	cutSystemText = "You are a gemologist identifying the cut of a gemstone from photographs. Answer only from the provided cut vocabulary. Return a valid JSON object and nothing else."

	colorSystemText = "You are a gemologist identifying the dominant color of a gemstone from photographs. Answer only from the provided color palette. Return a valid JSON object and nothing else."

	primarySystemText = "You are a product photography reviewer selecting the best catalog image for a gemstone listing. Score every image and classify what it shows. Return a valid JSON object and nothing else."

	ocrSystemText = "You are reading text from gemstone packaging, labels, measurement gauges and scales in photographs. Transcribe exactly what is visible, translate to English when needed, and extract labeled values. Return a valid JSON object and nothing else."
)

const cutPrompt = `Identify the cut of the gemstone shown in these photographs.

Allowed cuts: %s
%s
Return a valid JSON object:
{"detected_cut": "<one of the allowed cuts>", "confidence": <0.0-1.0>, "reasoning": "<brief explanation>", "matches_metadata": <true|false|null>}

Set matches_metadata to null when no declared cut was given.`

const colorPrompt = `Identify the dominant color of the gemstone shown in these photographs.

Allowed colors: %s
%s
Return a valid JSON object:
{"detected_color": "<one of the allowed colors>", "confidence": <0.0-1.0>, "color_description": "<free-text description of hue, tone and saturation>", "matches_metadata": <true|false|null>, "reasoning": "<brief explanation>"}

Set matches_metadata to null when no declared color was given.`

const primaryPrompt = `You are given %d photographs of the same gemstone, numbered 0 to %d in order.
Score each image on quality, composition, clarity and professional presentation (each 0.0-1.0),
give an overall score, and classify what the image shows as one of:
clean_subject (gemstone alone, well presented), acceptable (gemstone visible with minor distractions),
certificate, label, tool, packaging.

Return a valid JSON object:
{"selected_index": <index of the best catalog image>, "reasoning": "<brief explanation>", "images": [{"index": 0, "quality": <0.0-1.0>, "composition": <0.0-1.0>, "clarity": <0.0-1.0>, "professional_presentation": <0.0-1.0>, "overall": <0.0-1.0>, "classification": "<class>"}, ...]}

Include exactly one entry per image.`

const labelPrompt = `Read all text visible on the gemstone's packaging, labels or certificates in these photographs.

Return a valid JSON object:
{"raw_text": "<exact transcription>", "translated_text": "<English translation, or same as raw_text if already English>", "fields": [{"name": "<field name such as cut, color, weight_carats>", "value": "<value>", "confidence": <0.0-1.0>, "source": "label"}]}

Use an empty fields array when no labeled values are visible.`

const measurementPrompt = `Read the measurement instruments (calipers, gauges, scales) visible in these photographs of a gemstone.

Return a valid JSON object:
{"raw_text": "<exact transcription of instrument readings>", "translated_text": "<English translation, or same as raw_text>", "fields": [{"name": "<field name such as weight_carats, length_mm, width_mm, depth_mm>", "value": "<numeric reading>", "confidence": <0.0-1.0>, "source": "<gauge|scale>"}]}

Use an empty fields array when no readings are visible.`

// buildCutPrompt injects the cut vocabulary and optional declared value.
func buildCutPrompt(cuts []string, declared string) string {
	return fmt.Sprintf(cutPrompt, strings.Join(cuts, ", "), declaredLine("cut", declared))
}

// buildColorPrompt injects the color palette and optional declared value.
func buildColorPrompt(colors []string, declared string) string {
	return fmt.Sprintf(colorPrompt, strings.Join(colors, ", "), declaredLine("color", declared))
}

func buildPrimaryPrompt(imageCount int) string {
	return fmt.Sprintf(primaryPrompt, imageCount, imageCount-1)
}

func declaredLine(property, declared string) string {
	if declared == "" {
		return ""
	}
	return fmt.Sprintf("Declared %s from existing metadata: %s\n", property, declared)
}
