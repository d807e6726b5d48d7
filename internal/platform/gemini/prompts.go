package gemini

const bondListPrompt = `Generate %d realistic Indian corporate bonds listed on NSE/BSE as of %s.
Use plausible ISINs starting with "INE", well known Indian issuers, coupons between 6%% and 11%%,
maturities between 1 and 15 years, prices near par (90 to 110), and volumes in units traded today.
aiFairValue and standardFairValue are fair price estimates within 2%% of the price.
riskScore is 0-100 where higher is safer. prePlatformVolume and prePlatformInvestors describe
secondary market activity before tokenisation and are lower than current volume.`

const priceUpdatePrompt = `You are simulating intraday trading for the bonds below.
Return price updates for exactly %d of them. Each price may move at most 1.5%% from its
current value. Adjust volume by at most 10%% and give a bid-ask spread between 0.05 and 0.5.
Use the bond id exactly as given.

%s`

const commentaryPrompt = `Write a short market commentary on %s for retail investors on a tokenised
bond platform. The platform is currently in the "%s" infrastructure scenario; mention its effect
on trading if it is not "normal". Use a level 3 heading, one paragraph and three bullet points
with bold lead-ins. Do not use tables, links, code or HTML.`
