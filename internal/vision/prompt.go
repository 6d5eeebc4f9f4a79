package vision

// extractionPrompt asks the vision model for a strict JSON attribute set,
// one entry per detected pet. The breed and size wording here is load
// bearing: downstream screens display these strings verbatim.
const extractionPrompt = `You are helping identify a lost or stray pet from a photo.
Look at the image and describe every pet you can see.

Respond with ONLY a JSON object, no prose, matching this schema:
{
  "pets": [
    {
      "species": "Dog" | "Cat" | "Bird" | "Rabbit" | "Other",
      "breeds": ["breed name", ...],
      "colors": ["color", ...],
      "gender": "male" | "female" | "",
      "size": "small" | "medium" | "large",
      "distinctive_features": ["feature", ...],
      "collar_description": ["collar/harness/tag detail", ...],
      "confidence": 0.0-1.0
    }
  ],
  "image_quality": "short note on photo clarity issues, or empty string"
}

Breed rules:
- If you can identify one or two likely breeds, list them most-dominant first.
- If no breed is identifiable, return an empty "breeds" list; never guess wildly.
Size rules (dogs and similar animals): under 9 kg is "small", 9-23 kg is
"medium", over 23 kg is "large". Estimate visually and report the bucket only.

If the photo contains no pet at all, return {"pets": [], "image_quality": "..."}.`
