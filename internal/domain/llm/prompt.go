package llm

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"denticheck-server/internal/domain/report"
)

const systemPromptEN = `You are a dental screening explanation assistant.
The input is object detection output and retrieved reference passages.
This is NOT a medical diagnosis. Never claim a confirmed diagnosis; use suspicious or possible wording only.
Ground your explanation on the given reference passages.
Answer with a single JSON object with the string fields "summary", "details" and "disclaimer", and nothing else.`

const systemPromptKO = `당신은 치과 스크리닝 결과를 설명하는 도우미입니다.
입력은 객체 탐지 결과와 검색된 참고 자료입니다.
이 결과는 의학적 진단이 아닙니다. 확정 진단 표현을 쓰지 말고 "의심", "가능성" 같은 표현만 사용하세요.
제공된 참고 자료에 근거해 설명하세요.
"summary", "details", "disclaimer" 세 개의 문자열 필드를 가진 JSON 객체 하나로만 답하세요.`

const userPromptEN = `Write the report in English.

Detection findings per label:
{findings}

Image classifier results:
{classifier}

Survey answers:
{survey}

History:
{history}

Overall assessment:
{overall}

Disclaimer version: {disclaimer_version}

Reference passages:
{context}`

const userPromptKO = `리포트를 한국어로 작성하세요.

라벨별 탐지 결과:
{findings}

이미지 분류 결과:
{classifier}

설문 응답:
{survey}

이력:
{history}

종합 평가:
{overall}

고지문 버전: {disclaimer_version}

참고 자료:
{context}`

func newTemplates() map[string]prompt.ChatTemplate {
	return map[string]prompt.ChatTemplate{
		report.LanguageEnglish: prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemPromptEN),
			schema.UserMessage(userPromptEN),
		),
		report.LanguageKorean: prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemPromptKO),
			schema.UserMessage(userPromptKO),
		),
	}
}

func emptyContextText(lang string) string {
	if lang == report.LanguageEnglish {
		return "(no reference passages found)"
	}
	return "(검색된 참고 자료 없음)"
}
